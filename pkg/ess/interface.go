package ess

import (
	"context"

	"github.com/raterudder/powerwall-tou/pkg/types"
)

// Publisher defines the interface for installing a tariff on an Energy Storage
// System (like a Tesla Powerwall).
type Publisher interface {
	// Publish replaces the system's time-of-use tariff with doc.
	Publish(ctx context.Context, doc types.TariffDocument) error
}
