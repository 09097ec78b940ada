package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidResolution is returned when the configured price resolution isn't
// one that both price sources can produce.
var ErrInvalidResolution = errors.New("resolution must be 5 or 30 minutes")

// MinutesPerDay is the number of minutes in a wall-clock day.
const MinutesPerDay = 24 * 60

// Classification describes whether a price interval has already happened or is
// a prediction. The values match the Amber Electric interval types.
type Classification string

const (
	ClassificationActual   Classification = "ActualInterval"
	ClassificationCurrent  Classification = "CurrentInterval"
	ClassificationForecast Classification = "ForecastInterval"
)

// Valid returns true if c is one of the known classifications.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationActual, ClassificationCurrent, ClassificationForecast:
		return true
	}
	return false
}

// PriceInterval represents the buy and sell price of electricity for a single
// interval of the day.
type PriceInterval struct {
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// BuyPerKWH is the cost of importing from the grid in dollars per kWh.
	BuyPerKWH float64 `json:"buyPerKWH"`
	// SellPerKWH is the credit for exporting to the grid in dollars per kWh.
	SellPerKWH float64 `json:"sellPerKWH"`

	Classification Classification `json:"classification"`
}

// Slot returns the number of minutes since midnight of the interval's start in
// the start time's location. Intervals from different days share a slot.
func (p PriceInterval) Slot() int {
	return p.StartTime.Hour()*60 + p.StartTime.Minute()
}

// Label returns the zero-padded 24-hour start time (HHMM) of the interval.
func (p PriceInterval) Label() string {
	return SlotLabel(p.Slot())
}

// EndTime returns the start time plus the duration.
func (p PriceInterval) EndTime() time.Time {
	return p.StartTime.Add(p.Duration)
}

// SlotLabel formats minutes since midnight as HHMM.
func SlotLabel(slot int) string {
	return fmt.Sprintf("%02d%02d", slot/60, slot%60)
}

// ValidateResolution returns ErrInvalidResolution unless minutes is 5 or 30.
func ValidateResolution(minutes int) error {
	switch minutes {
	case 5, 30:
		return nil
	}
	return fmt.Errorf("%w: got %d", ErrInvalidResolution, minutes)
}

// SlotsPerDay returns how many intervals of the given resolution tile a day.
func SlotsPerDay(resolution int) int {
	return MinutesPerDay / resolution
}
