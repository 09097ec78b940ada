package utility

import (
	"context"
	"testing"
	"time"

	"github.com/raterudder/powerwall-tou/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource []types.PriceInterval

func (s staticSource) Prices(context.Context) ([]types.PriceInterval, error) {
	return s, nil
}

func TestMap(t *testing.T) {
	m := NewMap()
	assert.Equal(t, 5, m.Resolution())
	assert.Equal(t, time.Local, m.Location())

	_, err := m.Source(SourceAmber)
	assert.Error(t, err)

	src := staticSource{{BuyPerKWH: 0.1}}
	m.SetSource(SourceAmber, src)
	got, err := m.Source(SourceAmber)
	require.NoError(t, err)
	prices, err := got.Prices(context.Background())
	require.NoError(t, err)
	assert.Len(t, prices, 1)
}

func TestLoadLocation(t *testing.T) {
	loc, err := loadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = loadLocation("Australia/Brisbane")
	require.NoError(t, err)
	assert.Equal(t, "Australia/Brisbane", loc.String())

	_, err = loadLocation("Not/AZone")
	assert.Error(t, err)
}
