package tariff

import (
	"github.com/raterudder/powerwall-tou/pkg/types"
)

// Build converts the merged intervals into a tariff document. Every interval
// becomes a TOU period applying to all days of the week, keyed by its HHMM
// label, with its buy rate in the energy charges and its sell rate in the sell
// tariff under the same label. The output only
// depends on plan and merged.
func Build(plan Plan, merged []types.PriceInterval) types.TariffDocument {
	periods := make(map[string]types.TOUPeriodContainer, len(merged))
	buyRates := make(map[string]float64, len(merged))
	sellRates := make(map[string]float64, len(merged))

	for _, p := range merged {
		end := p.EndTime()
		periods[p.Label()] = types.TOUPeriodContainer{
			Periods: []types.TOUPeriod{{
				FromDayOfWeek: 0,
				FromHour:      p.StartTime.Hour(),
				FromMinute:    p.StartTime.Minute(),
				ToDayOfWeek:   6,
				ToHour:        end.Hour(),
				ToMinute:      end.Minute(),
			}},
		}
		buyRates[p.Label()] = p.BuyPerKWH
		sellRates[p.Label()] = p.SellPerKWH
	}

	seasons := map[string]types.Season{
		SeasonAll: {
			FromMonth: 1,
			FromDay:   1,
			ToMonth:   12,
			ToDay:     31,
			TOUPeriods: periods,
		},
	}
	demandCharges := map[string]types.DemandChargesSeason{
		SeasonAll: {Rates: map[string]any{}},
	}
	dailyCharges := append([]types.DailyCharge{}, plan.DailyCharges...)

	return types.TariffDocument{
		Version:            1,
		Utility:            plan.Utility,
		Code:               plan.Code,
		Name:               plan.Name,
		Currency:           plan.Currency,
		DailyCharges:       dailyCharges,
		DailyDemandCharges: map[string]any{},
		DemandCharges:      demandCharges,
		EnergyCharges: map[string]types.EnergyChargesSeason{
			SeasonAll: {Rates: buyRates},
		},
		Seasons: seasons,
		SellTariff: types.SellTariff{
			Utility:            plan.Utility,
			Code:               plan.Code,
			Name:               plan.Name,
			Currency:           plan.Currency,
			DailyCharges:       dailyCharges,
			DailyDemandCharges: map[string]any{},
			DemandCharges:      demandCharges,
			EnergyCharges: map[string]types.EnergyChargesSeason{
				SeasonAll: {Rates: sellRates},
			},
			Seasons: seasons,
		},
	}
}
