package utility

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raterudder/powerwall-tou/pkg/log"
	"github.com/raterudder/powerwall-tou/pkg/types"
)

// band is a daily window [from, to) in minutes since midnight with a flat rate.
type band struct {
	from int
	to   int
	rate float64
}

func (b band) contains(slot int) bool {
	return slot >= b.from && slot < b.to
}

// Bands are checked in order and the first match wins so the narrower peak
// windows must come before the shoulders that enclose them.
var (
	globirdBuyBands = []band{
		{from: 18 * 60, to: 20 * 60, rate: 1.50},
		{from: 16 * 60, to: 23 * 60, rate: 0.46},
		{from: 11 * 60, to: 14 * 60, rate: 0.00},
	}
	globirdSellBands = []band{
		{from: 18 * 60, to: 20 * 60, rate: 0.15},
		{from: 16 * 60, to: 21 * 60, rate: 0.09},
		{from: 11 * 60, to: 14 * 60, rate: 0.00},
	}
)

const (
	globirdBuyDefault  = 0.31
	globirdSellDefault = 0.05
)

func rateAt(bands []band, fallback float64, slot int) float64 {
	for _, b := range bands {
		if b.contains(slot) {
			return b.rate
		}
	}
	return fallback
}

// Globird produces the simulated Globird ZEROHERO plan prices. The plan is a
// fixed schedule so every day has the same prices.
type Globird struct {
	resolution int
	location   *time.Location
	now        func() time.Time
}

// NewGlobird returns a Globird source for the given resolution and location.
func NewGlobird(resolution int, loc *time.Location) (*Globird, error) {
	if err := types.ValidateResolution(resolution); err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, fmt.Errorf("location is required")
	}
	return &Globird{
		resolution: resolution,
		location:   loc,
		now:        time.Now,
	}, nil
}

// Prices returns the plan prices for the current day.
func (g *Globird) Prices(ctx context.Context) ([]types.PriceInterval, error) {
	prices := g.PricesForDay(g.now())
	log.Ctx(ctx).DebugContext(
		ctx,
		"generated globird prices",
		slog.Int("count", len(prices)),
		slog.Int("resolution", g.resolution),
	)
	return prices, nil
}

// PricesForDay returns one interval per resolution step covering the whole
// wall-clock day of day in the configured location. The intervals use the UTC
// offset in effect at midnight so a daylight saving change never produces a
// duplicate or missing wall-clock slot.
func (g *Globird) PricesForDay(day time.Time) []types.PriceInterval {
	midnight := startOfDay(day, g.location)
	name, offset := midnight.Zone()
	zone := time.FixedZone(name, offset)

	step := time.Duration(g.resolution) * time.Minute
	count := types.SlotsPerDay(g.resolution)
	prices := make([]types.PriceInterval, 0, count)
	for i := 0; i < count; i++ {
		slot := i * g.resolution
		prices = append(prices, types.PriceInterval{
			StartTime:      time.Date(midnight.Year(), midnight.Month(), midnight.Day(), 0, slot, 0, 0, zone),
			Duration:       step,
			BuyPerKWH:      rateAt(globirdBuyBands, globirdBuyDefault, slot),
			SellPerKWH:     rateAt(globirdSellBands, globirdSellDefault, slot),
			Classification: types.ClassificationActual,
		})
	}
	return prices
}
