package ess

import (
	"log/slog"

	"github.com/raterudder/powerwall-tou/pkg/log"
	"github.com/raterudder/powerwall-tou/pkg/storage/storagemock"
)

type mockStore = storagemock.MockCredentialStore

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}
