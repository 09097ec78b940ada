package utility

import (
	"context"

	"github.com/raterudder/powerwall-tou/pkg/types"
)

// Source defines the interface for something that produces the prices for a
// day at a fixed resolution.
type Source interface {
	// Prices returns the price intervals for the current day. Intervals are
	// non-overlapping and ordered by start time.
	Prices(ctx context.Context) ([]types.PriceInterval, error)
}
