package service

import (
	"errors"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/core/port"
	"github.com/berfenger/tigo2mqtt/pkg/cca"
	"go.uber.org/zap"
)

const DefaultHistoryDays = 7

type EngineOptions struct {
	DeviceCap           int
	Devices             []domain.DeviceProfile
	Validator           cca.Validator
	MaxResyncScan       int
	MaxBuffer           int
	Scaling             Scaling
	DefaultPowerFactor  float64
	StalenessWindow     time.Duration
	NightModeTimeout    time.Duration
	NightModeThresholdW float64
	ResetAtMidnight     bool
	HistoryDays         int
}

// Engine is the decode and aggregate pipeline. It is not safe for
// concurrent use: one goroutine owns it and hands out copies.
type Engine struct {
	opts       EngineOptions
	assembler  *cca.Assembler
	nodes      *NodeTable
	registry   *Registry
	aggregator *Aggregator
	night      *NightModeDetector
	midnight   *MidnightResetScheduler
	clock      port.Clock
	history    []domain.DailyEnergy
	lastTick   time.Time
	logger     *zap.Logger
}

func NewEngine(opts EngineOptions, clock port.Clock, now time.Time, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = DefaultHistoryDays
	}
	if clock == nil {
		clock = port.NoClock{}
	}
	deriver := NewMetricsDeriver(opts.Scaling, opts.DefaultPowerFactor)
	return &Engine{
		opts:       opts,
		assembler:  cca.NewAssembler(opts.Validator, opts.MaxResyncScan, opts.MaxBuffer),
		nodes:      NewNodeTable(opts.Devices),
		registry:   NewRegistry(opts.DeviceCap, deriver, logger),
		aggregator: NewAggregator(opts.StalenessWindow),
		night:      NewNightModeDetector(opts.NightModeTimeout, opts.NightModeThresholdW, now, logger),
		midnight:   NewMidnightResetScheduler(opts.ResetAtMidnight, logger),
		clock:      clock,
		logger:     logger,
	}
}

// Tick runs one full pass over the bytes read since the previous tick.
// Decode failures only move counters.
func (e *Engine) Tick(data []byte, now time.Time) domain.TickResult {
	var result domain.TickResult

	feed := e.assembler.Feed(data, now)
	e.aggregator.AddLinkErrors(feed.InvalidChecksums, feed.MissedFrames)
	result.InvalidChecksums = feed.InvalidChecksums
	result.MissedFrames = feed.MissedFrames
	if feed.DiscardedBytes > 0 {
		e.logger.Debug("engine: discarded bytes while resyncing",
			zap.Int("bytes", feed.DiscardedBytes),
			zap.Uint64("invalid", feed.InvalidChecksums),
			zap.Uint64("missed", feed.MissedFrames))
	}

	activity := false
	for _, frame := range feed.Frames {
		t := frame.Decode()
		profile := e.nodes.Resolve(t.Slot)
		created, err := e.registry.Upsert(profile, t, now)
		if err != nil {
			if errors.Is(err, ErrRegistryFull) {
				result.Rejected++
			}
			continue
		}
		result.FramesDecoded++
		rec, _ := e.registry.Get(profile.Address)
		if created {
			result.NewDevices = append(result.NewDevices, rec)
			e.logger.Info("engine: new device", zap.String("address", rec.Address), zap.Uint8("slot", rec.Slot))
		}
		if rec.Readings.PowerW > 0 {
			activity = true
		}
	}
	e.aggregator.AddDecoded(result.FramesDecoded, result.Rejected)

	agg := e.aggregator.Recompute(e.registry.List(), now)
	_, result.NightModeChanged = e.night.Evaluate(agg.PowerSumW, activity, now)

	fired, prevDay, err := e.midnight.Check(e.clock)
	if err != nil {
		e.logger.Warn("engine: clock read failed", zap.Error(err))
	} else if fired {
		archived := domain.DailyEnergy{Day: prevDay, EnergyWh: agg.EnergyWh}
		e.archive(archived)
		e.aggregator.ResetEnergy()
		result.MidnightReset = true
		result.ArchivedDay = &archived
	}

	e.lastTick = now
	return result
}

func (e *Engine) archive(day domain.DailyEnergy) {
	e.history = append(e.history, day)
	if over := len(e.history) - e.opts.HistoryDays; over > 0 {
		e.history = append([]domain.DailyEnergy(nil), e.history[over:]...)
	}
}

func (e *Engine) Snapshot() domain.Snapshot {
	return domain.Snapshot{
		Devices:   e.registry.List(),
		Aggregate: e.aggregator.State(),
		NightMode: e.night.State(),
		History:   e.History(),
		TakenAt:   e.lastTick,
	}
}

func (e *Engine) Device(address string) (domain.DeviceRecord, bool) {
	return e.registry.Get(address)
}

func (e *Engine) Devices() []domain.DeviceRecord {
	return e.registry.List()
}

func (e *Engine) Aggregate() domain.AggregateState {
	return e.aggregator.State()
}

func (e *Engine) NightMode() domain.NightModeState {
	return e.night.State()
}

func (e *Engine) History() []domain.DailyEnergy {
	return append([]domain.DailyEnergy(nil), e.history...)
}

func (e *Engine) StalenessWindow() time.Duration {
	return e.aggregator.Staleness()
}

// NodeTable lists configured profiles followed by any device seen on a slot
// that has no configuration.
func (e *Engine) NodeTable() []domain.DeviceProfile {
	nodes := e.nodes.Profiles()
	known := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		if n.Address == "" {
			nodes[i] = e.nodes.Resolve(n.Slot)
		}
		known[nodes[i].Address] = true
	}
	for _, rec := range e.registry.List() {
		if !known[rec.Address] {
			nodes = append(nodes, rec.DeviceProfile)
		}
	}
	return nodes
}

// ResetNodeTable forgets every device and zeroes the link counters. The
// energy total is kept.
func (e *Engine) ResetNodeTable() {
	e.registry.Clear()
	e.aggregator.ResetCounters()
	e.assembler.Reset()
	e.logger.Info("engine: node table reset")
}

func (e *Engine) ResetEnergy() {
	e.aggregator.ResetEnergy()
	e.logger.Info("engine: energy reset")
}

func (e *Engine) ResetPeakPower() {
	e.registry.ResetPeaks()
	e.logger.Info("engine: peak power reset")
}

// RestoreEnergy loads persisted accumulators. With midnight reset enabled, a
// total saved on an earlier day than the clock reports is archived instead
// of carried over.
func (e *Engine) RestoreEnergy(state domain.EnergyState) {
	e.registry.RestorePeaks(state.Peaks)
	e.history = append([]domain.DailyEnergy(nil), state.History...)
	if over := len(e.history) - e.opts.HistoryDays; over > 0 {
		e.history = e.history[over:]
	}

	today := domain.DayKey(0)
	if now, err := e.clock.Now(); err == nil {
		today = domain.DayKeyOf(now)
	}

	switch {
	case !e.midnight.Enabled || today == 0 || state.Day == 0 || state.Day == today:
		e.aggregator.SetEnergy(state.EnergyWh)
	default:
		if state.EnergyWh > 0 {
			e.archive(domain.DailyEnergy{Day: state.Day, EnergyWh: state.EnergyWh})
		}
		e.aggregator.SetEnergy(0)
	}
	if today != 0 {
		e.midnight.Restore(today)
	} else if state.Day != 0 {
		e.midnight.Restore(state.Day)
	}
	e.logger.Info("engine: energy restored", zap.Float64("energy_wh", e.aggregator.State().EnergyWh), zap.Int("history_days", len(e.history)))
}

func (e *Engine) EnergyState(savedAt time.Time) domain.EnergyState {
	day := e.midnight.Day()
	if day == 0 && !e.lastTick.IsZero() {
		day = domain.DayKeyOf(e.lastTick)
	}
	return domain.EnergyState{
		EnergyWh: e.aggregator.State().EnergyWh,
		Day:      day,
		History:  e.History(),
		Peaks:    e.registry.Peaks(),
		SavedAt:  savedAt,
	}
}
