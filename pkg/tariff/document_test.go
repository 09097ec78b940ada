package tariff

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/raterudder/powerwall-tou/pkg/types"
	"github.com/raterudder/powerwall-tou/pkg/utility"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	t.Run("Periods And Rates", func(t *testing.T) {
		merged := uniformDay(30, 0.25, 0.10, types.ClassificationActual)
		merged[35].BuyPerKWH = 0.46

		doc := Build(DefaultPlan(), merged)

		assert.Equal(t, 1, doc.Version)
		assert.Equal(t, "Globird", doc.Utility)
		assert.Equal(t, "ZEROHERO", doc.Code)
		assert.Equal(t, "Globird ZEROHERO VPP", doc.Name)
		assert.Equal(t, "USD", doc.Currency)
		assert.Equal(t, []types.DailyCharge{{Name: "Daily Charge", Amount: 1.1}}, doc.DailyCharges)
		assert.Empty(t, doc.DailyDemandCharges)
		assert.Empty(t, doc.DemandCharges[SeasonAll].Rates)

		season := doc.Seasons[SeasonAll]
		assert.Equal(t, 1, season.FromMonth)
		assert.Equal(t, 1, season.FromDay)
		assert.Equal(t, 12, season.ToMonth)
		assert.Equal(t, 31, season.ToDay)

		periods := season.TOUPeriods
		require.Len(t, periods, types.SlotsPerDay(30))
		assert.NotContains(t, periods, SeasonAll)
		assert.Equal(t, []types.TOUPeriod{{FromDayOfWeek: 0, FromHour: 0, FromMinute: 0, ToDayOfWeek: 6, ToHour: 0, ToMinute: 30}}, periods["0000"].Periods)
		assert.Equal(t, []types.TOUPeriod{{FromDayOfWeek: 0, FromHour: 17, FromMinute: 0, ToDayOfWeek: 6, ToHour: 17, ToMinute: 30}}, periods["1700"].Periods)
		assert.Equal(t, []types.TOUPeriod{{FromDayOfWeek: 0, FromHour: 17, FromMinute: 30, ToDayOfWeek: 6, ToHour: 18, ToMinute: 0}}, periods["1730"].Periods)
		assert.Equal(t, []types.TOUPeriod{{FromDayOfWeek: 0, FromHour: 23, FromMinute: 30, ToDayOfWeek: 6, ToHour: 0, ToMinute: 0}}, periods["2330"].Periods)

		buy := doc.EnergyCharges[SeasonAll].Rates
		require.Len(t, buy, 48)
		assert.Equal(t, 0.46, buy["1730"])
		assert.Equal(t, 0.25, buy["0000"])

		sell := doc.SellTariff.EnergyCharges[SeasonAll].Rates
		require.Len(t, sell, 48)
		assert.Equal(t, 0.10, sell["1730"])

		assert.Equal(t, doc.Seasons, doc.SellTariff.Seasons)
		assert.Equal(t, doc.Code, doc.SellTariff.Code)
		assert.Equal(t, doc.Name, doc.SellTariff.Name)
		assert.Equal(t, doc.Utility, doc.SellTariff.Utility)
		assert.Equal(t, doc.Currency, doc.SellTariff.Currency)
		assert.Equal(t, doc.DailyCharges, doc.SellTariff.DailyCharges)
		assert.Empty(t, doc.SellTariff.DemandCharges[SeasonAll].Rates)
	})

	t.Run("Rate Labels Match Periods", func(t *testing.T) {
		g, err := utility.NewGlobird(5, time.UTC)
		require.NoError(t, err)
		doc := Build(DefaultPlan(), g.PricesForDay(testDay))

		periods := doc.Seasons[SeasonAll].TOUPeriods
		buy := doc.EnergyCharges[SeasonAll].Rates
		sell := doc.SellTariff.EnergyCharges[SeasonAll].Rates
		require.Len(t, periods, 288)
		require.Len(t, buy, 288)
		require.Len(t, sell, 288)

		for label, container := range periods {
			assert.Len(t, container.Periods, 1, label)
			assert.Contains(t, buy, label)
			assert.Contains(t, sell, label)
		}
		for label := range buy {
			assert.Contains(t, periods, label)
		}
		for label := range sell {
			assert.Contains(t, periods, label)
		}
		assert.Equal(t, 1.50, buy["1800"])
		assert.Equal(t, []types.TOUPeriod{{FromDayOfWeek: 0, FromHour: 18, FromMinute: 0, ToDayOfWeek: 6, ToHour: 18, ToMinute: 5}}, periods["1800"].Periods)
	})

	t.Run("Deterministic", func(t *testing.T) {
		merged := uniformDay(5, 0.25, 0.10, types.ClassificationActual)
		a, err := json.Marshal(Build(DefaultPlan(), merged))
		require.NoError(t, err)
		b, err := json.Marshal(Build(DefaultPlan(), merged))
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b))
	})

	t.Run("Round Trip", func(t *testing.T) {
		merged := uniformDay(30, 0.25, 0.10, types.ClassificationActual)
		doc := Build(DefaultPlan(), merged)

		b, err := json.Marshal(doc)
		require.NoError(t, err)
		var parsed types.TariffDocument
		require.NoError(t, json.Unmarshal(b, &parsed))
		assert.Equal(t, doc, parsed)
	})
}

func TestEndToEnd(t *testing.T) {
	sim := uniformDay(5, 0.25, 0.10, types.ClassificationActual)
	live := uniformDay(5, 0.0, 0.10, types.ClassificationForecast)
	live[17*12].SellPerKWH = 1.55

	merged, err := Merge(context.Background(), sim, live, 5)
	require.NoError(t, err)
	require.Len(t, merged, 288)

	for _, p := range merged {
		if p.Label() == "1700" {
			assert.InDelta(t, 1.25, p.BuyPerKWH, 1e-9)
			assert.Equal(t, 1.0, p.SellPerKWH)
			continue
		}
		assert.Equal(t, types.ClassificationActual, p.Classification, p.Label())
		assert.Equal(t, 0.25, p.BuyPerKWH, p.Label())
		assert.Equal(t, 0.10, p.SellPerKWH, p.Label())
	}

	doc := Build(DefaultPlan(), merged)
	buy := doc.EnergyCharges[SeasonAll].Rates
	sell := doc.SellTariff.EnergyCharges[SeasonAll].Rates
	require.Len(t, buy, 288)
	require.Len(t, sell, 288)
	for label, rate := range buy {
		if label == "1700" {
			assert.InDelta(t, 1.25, rate, 1e-9)
			assert.Equal(t, 1.0, sell[label])
			continue
		}
		assert.Equal(t, 0.25, rate, label)
		assert.Equal(t, 0.10, sell[label], label)
	}
}
