package types

// TariffDocument is the tariff_content_v2 document accepted by the Tesla
// energy site time_of_use_settings endpoint.
type TariffDocument struct {
	Version             int                            `json:"version"`
	MonthlyMinimumBill  float64                        `json:"monthly_minimum_bill"`
	MinApplicableDemand float64                        `json:"min_applicable_demand"`
	MaxApplicableDemand float64                        `json:"max_applicable_demand"`
	MonthlyCharges      float64                        `json:"monthly_charges"`
	Utility             string                         `json:"utility"`
	Code                string                         `json:"code"`
	Name                string                         `json:"name"`
	Currency            string                         `json:"currency"`
	DailyCharges        []DailyCharge                  `json:"daily_charges"`
	DailyDemandCharges  map[string]any                 `json:"daily_demand_charges"`
	DemandCharges       map[string]DemandChargesSeason `json:"demand_charges"`
	EnergyCharges       map[string]EnergyChargesSeason `json:"energy_charges"`
	Seasons             map[string]Season              `json:"seasons"`
	SellTariff          SellTariff                     `json:"sell_tariff"`
}

// SellTariff is the export side of a tariff. It repeats the identity and season
// fields of the parent document with its own energy charges.
type SellTariff struct {
	MinApplicableDemand float64                        `json:"min_applicable_demand"`
	MonthlyMinimumBill  float64                        `json:"monthly_minimum_bill"`
	MonthlyCharges      float64                        `json:"monthly_charges"`
	MaxApplicableDemand float64                        `json:"max_applicable_demand"`
	Utility             string                         `json:"utility"`
	DemandCharges       map[string]DemandChargesSeason `json:"demand_charges"`
	DailyCharges        []DailyCharge                  `json:"daily_charges"`
	Seasons             map[string]Season              `json:"seasons"`
	Code                string                         `json:"code"`
	EnergyCharges       map[string]EnergyChargesSeason `json:"energy_charges"`
	DailyDemandCharges  map[string]any                 `json:"daily_demand_charges"`
	Currency            string                         `json:"currency"`
	Name                string                         `json:"name"`
}

// Season is a range of the year with its own set of TOU periods.
type Season struct {
	FromMonth  int                           `json:"fromMonth"`
	FromDay    int                           `json:"fromDay"`
	ToMonth    int                           `json:"toMonth"`
	ToDay      int                           `json:"toDay"`
	TOUPeriods map[string]TOUPeriodContainer `json:"tou_periods"`
}

// TOUPeriodContainer holds the periods for a single named rate.
type TOUPeriodContainer struct {
	Periods []TOUPeriod `json:"periods"`
}

// TOUPeriod is a weekly recurring window. Days of the week are 0 (Sunday) to 6.
type TOUPeriod struct {
	FromDayOfWeek int `json:"fromDayOfWeek"`
	FromHour      int `json:"fromHour"`
	FromMinute    int `json:"fromMinute"`
	ToDayOfWeek   int `json:"toDayOfWeek"`
	ToHour        int `json:"toHour"`
	ToMinute      int `json:"toMinute"`
}

// EnergyChargesSeason maps a period name to its rate in currency per kWh.
type EnergyChargesSeason struct {
	Rates map[string]float64 `json:"rates"`
}

// DemandChargesSeason maps a period name to a demand charge. Demand charges
// aren't modeled so this is always empty.
type DemandChargesSeason struct {
	Rates map[string]any `json:"rates"`
}

// DailyCharge is a fixed amount charged every day.
type DailyCharge struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// TOUSettingsRequest is the body of the time_of_use_settings request.
type TOUSettingsRequest struct {
	TOUSettings TOUSettings `json:"tou_settings"`
}

// TOUSettings wraps the tariff document.
type TOUSettings struct {
	TariffContentV2 TariffDocument `json:"tariff_content_v2"`
}
