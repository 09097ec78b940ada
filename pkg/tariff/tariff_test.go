package tariff

import (
	"log/slog"

	"github.com/raterudder/powerwall-tou/pkg/log"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}
