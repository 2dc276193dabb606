package port

import (
	"context"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
)

// EnergyStore persists the energy accumulator across restarts.
type EnergyStore interface {
	LoadEnergy(ctx context.Context) (*domain.EnergyState, error)
	SaveEnergy(ctx context.Context, state domain.EnergyState) error
	Close() error
}
