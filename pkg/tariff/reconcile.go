package tariff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raterudder/powerwall-tou/pkg/log"
	"github.com/raterudder/powerwall-tou/pkg/types"
)

// SpikeSellThreshold is the live sell rate that must be exceeded for a slot to
// be treated as a demand-response spike.
const SpikeSellThreshold = 1.5

const (
	spikeSellPerKWH = 1.0
	spikeBuyPremium = 1.0
)

// ErrMissingSlot is returned when the simulated prices don't cover a slot of
// the day.
var ErrMissingSlot = errors.New("simulated price missing for slot")

// isSpike returns true if the live interval should override the simulated
// interval for its slot.
func isSpike(live types.PriceInterval) bool {
	return live.SellPerKWH > SpikeSellThreshold
}

// Merge walks every slot of the day at resolution and returns one interval per
// slot in chronological order. Each slot starts from the simulated interval and
// is overridden when the live interval for the same time of day is a spike: the
// sell rate becomes 1 and 1 is added to the simulated buy rate.
func Merge(ctx context.Context, simulated, live []types.PriceInterval, resolution int) ([]types.PriceInterval, error) {
	if err := types.ValidateResolution(resolution); err != nil {
		return nil, err
	}

	simBySlot := make(map[int]types.PriceInterval, len(simulated))
	for _, p := range simulated {
		simBySlot[p.Slot()] = p
	}
	liveBySlot := indexLive(live)

	count := types.SlotsPerDay(resolution)
	merged := make([]types.PriceInterval, 0, count)
	for i := 0; i < count; i++ {
		slot := i * resolution
		sim, ok := simBySlot[slot]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSlot, types.SlotLabel(slot))
		}

		out := sim
		if l, ok := liveBySlot[slot]; ok && isSpike(l) {
			log.Ctx(ctx).InfoContext(
				ctx,
				"spike detected in live prices",
				slog.String("slot", types.SlotLabel(slot)),
				slog.Float64("liveSell", l.SellPerKWH),
				slog.Float64("simulatedBuy", sim.BuyPerKWH),
			)
			out.SellPerKWH = spikeSellPerKWH
			out.BuyPerKWH = sim.BuyPerKWH + spikeBuyPremium
			out.Classification = l.Classification
		}
		merged = append(merged, out)
	}
	return merged, nil
}

// indexLive maps each time of day to its live interval. The earliest interval
// for a time of day wins.
func indexLive(live []types.PriceInterval) map[int]types.PriceInterval {
	bySlot := make(map[int]types.PriceInterval, len(live))
	for _, p := range live {
		if _, ok := bySlot[p.Slot()]; ok {
			continue
		}
		bySlot[p.Slot()] = p
	}
	return bySlot
}

// CountSpikes returns the number of slots of the day at resolution that Merge
// overrides with a spike. Live intervals that Merge ignores aren't counted.
func CountSpikes(live []types.PriceInterval, resolution int) int {
	if types.ValidateResolution(resolution) != nil {
		return 0
	}
	var n int
	for slot, p := range indexLive(live) {
		if slot%resolution == 0 && isSpike(p) {
			n++
		}
	}
	return n
}
