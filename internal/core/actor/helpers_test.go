package actor

import (
	"context"
	"sync"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/core/port"
)

const (
	frameRoofA1 = "503025322105B084FF443F8F"
	frameRoofA2 = "503026322105B084FF443F8F"
)

type memStore struct {
	mu     sync.Mutex
	state  *domain.EnergyState
	saves  int
	closed bool
}

func (s *memStore) LoadEnergy(_ context.Context) (*domain.EnergyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	c := *s.state
	return &c, nil
}

func (s *memStore) SaveEnergy(_ context.Context, state domain.EnergyState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &state
	s.saves++
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *memStore) peaks() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	return s.state.Peaks
}

type recordingObserver struct {
	mu        sync.Mutex
	snapshots int
	decoded   int
}

func (o *recordingObserver) ObserveSnapshot(_ domain.Snapshot, tick domain.TickResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshots++
	o.decoded += tick.FramesDecoded
}

func (o *recordingObserver) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshots, o.decoded
}

var _ port.EnergyStore = (*memStore)(nil)
var _ port.SnapshotObserver = (*recordingObserver)(nil)
