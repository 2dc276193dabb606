package port

import (
	"context"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
)

// SnapshotObserver receives every snapshot synchronously. Implementations
// must not block.
type SnapshotObserver interface {
	ObserveSnapshot(snapshot domain.Snapshot, tick domain.TickResult)
}

// HistorySink stores snapshots in a time series backend.
type HistorySink interface {
	WriteSnapshot(ctx context.Context, snapshot domain.Snapshot) error
	Close() error
}
