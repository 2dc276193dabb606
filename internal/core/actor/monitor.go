package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/config"
	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/core/events"
	"github.com/berfenger/tigo2mqtt/internal/core/port"
	"github.com/berfenger/tigo2mqtt/internal/core/service"
	. "github.com/berfenger/tigo2mqtt/internal/util/actorutil"
	"github.com/berfenger/tigo2mqtt/pkg/cca"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	DEFAULT_POLL_INTERVAL = 1 * time.Second
	storeTimeout          = 2 * time.Second
	sinkTimeout           = 5 * time.Second
)

// MonitorDeps are the optional collaborators of the monitor. Nil members
// are skipped.
type MonitorDeps struct {
	Store     port.EnergyStore
	Observers []port.SnapshotObserver
	Sinks     []port.HistorySink
	Clock     port.Clock
	Now       func() time.Time
}

// MonitorActor owns the decode engine. Every tick it drains the serial
// actor, runs the engine and fans the result out to the event stream.
type MonitorActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	config      *config.Config
	serialActor *actor.PID
	eventStream *eventstream.EventStream
	deps        MonitorDeps
	engine      *service.Engine
	commands    *cca.CommandBuilder

	ticks           uint64
	lastZeroPublish time.Time

	logger *zap.Logger
}

type monitorTick struct {
}

type energyLoaded struct {
	state *domain.EnergyState
	err   error
}

type energySaved struct {
	replyTo *actor.PID
	err     error
}

type sinkWritten struct {
}

func NewMonitorActor(config *config.Config, serialActor *actor.PID, eventStream *eventstream.EventStream, deps MonitorDeps, logger *zap.Logger) *MonitorActor {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	act := &MonitorActor{
		config:      config,
		serialActor: serialActor,
		eventStream: eventStream,
		deps:        deps,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		commands:    cca.NewCommandBuilder(config.Serial.GatewayAddress),
		logger:      ActorLogger(domain.ACTOR_ID_MONITOR, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

// EngineOptionsFromConfig maps the configuration onto engine options.
func EngineOptionsFromConfig(cfg *config.Config) (service.EngineOptions, error) {
	header, err := cfg.Validator.HeaderBytes()
	if err != nil {
		return service.EngineOptions{}, err
	}
	return service.EngineOptions{
		DeviceCap: cfg.Tigo.NumberOfDevices,
		Devices:   cfg.Tigo.Profiles(),
		Validator: cca.Validator{
			Header:  header,
			SlotMin: cfg.Validator.SlotMin,
			SlotMax: cfg.Validator.SlotMax,
		},
		MaxResyncScan: cfg.Validator.MaxResyncScan,
		MaxBuffer:     cfg.Validator.MaxBuffer,
		Scaling: service.Scaling{
			VinScale:         cfg.Scaling.VinScale,
			VinOffset:        cfg.Scaling.VinOffset,
			VoutScale:        cfg.Scaling.VoutScale,
			VoutOffset:       cfg.Scaling.VoutOffset,
			IinScale:         cfg.Scaling.IinScale,
			IinOffset:        cfg.Scaling.IinOffset,
			TempScale:        cfg.Scaling.TempScale,
			TempOffset:       cfg.Scaling.TempOffset,
			PowerCalibration: cfg.Scaling.PowerCalibration,
		},
		DefaultPowerFactor:  cfg.Scaling.DefaultPowerFactor,
		StalenessWindow:     time.Duration(cfg.Tigo.StalenessMinutes) * time.Minute,
		NightModeTimeout:    time.Duration(cfg.NightMode.TimeoutMinutes) * time.Minute,
		NightModeThresholdW: cfg.NightMode.ThresholdW,
		ResetAtMidnight:     cfg.ResetAtMidnight,
		HistoryDays:         cfg.Tigo.HistoryDays,
	}, nil
}

func (state *MonitorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MonitorActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("monitor@starting started")

		opts, err := EngineOptionsFromConfig(state.config)
		if err != nil {
			state.logger.Error("monitor@starting invalid engine options", zap.Error(err))
			panic(err)
		}
		state.engine = service.NewEngine(opts, state.deps.Clock, state.deps.Now(), state.logger)
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		if state.deps.Store == nil {
			state.becomeDefault(ctx)
			return
		}

		store := state.deps.Store
		NewBackgroundTask(ctx, func() (*energyLoaded, error) {
			c, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			es, err := store.LoadEnergy(c)
			return &energyLoaded{state: es, err: err}, nil
		}).WithTimeout(storeTimeout + time.Second).Recover(func(err error) energyLoaded {
			return energyLoaded{err: err}
		}).PipeToAsync(ctx.Self())
		state.behavior.Become(state.RestoringReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("monitor@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) RestoringReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case energyLoaded:
		if msg.err != nil {
			state.logger.Error("monitor@restoring could not load energy", zap.Error(msg.err))
		} else if msg.state != nil {
			state.engine.RestoreEnergy(*msg.state)
		} else {
			state.logger.Info("monitor@restoring no stored energy")
		}
		state.becomeDefault(ctx)
	default:
		state.logger.Debug("monitor@restoring stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) becomeDefault(ctx actor.Context) {
	state.behavior.Become(state.DefaultReceive)
	state.scheduleTick(ctx)
	state.stash.UnstashAll(ctx)
}

func (state *MonitorActor) DefaultReceive(ctx actor.Context) {
	if state.receiveQuery(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("monitor@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MONITOR,
			Healthy: true,
			State:   string(state.engine.NightMode().Mode),
		})
	case monitorTick:
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.serialActor, domain.ReadSerialRequest{
			MaxBytes: state.config.Serial.ReadMaxBytes,
		}, 6*time.Second), func(err error) any {
			return domain.ReadSerialResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
		state.behavior.BecomeStacked(state.WaitingSerialReceive)
	case domain.ResetNodeTableRequest:
		state.engine.ResetNodeTable()
		ForRequest(msg).Respond(ctx, domain.MonitorCommandResponse{Command: msg.MonitorCommand()})
		state.publishSnapshot(false)
	case domain.ResetEnergyRequest:
		state.engine.ResetEnergy()
		ForRequest(msg).Respond(ctx, domain.MonitorCommandResponse{Command: msg.MonitorCommand()})
		state.publishSnapshot(false)
		state.saveEnergy(ctx, nil)
	case domain.ResetPeakPowerRequest:
		state.engine.ResetPeakPower()
		ForRequest(msg).Respond(ctx, domain.MonitorCommandResponse{Command: msg.MonitorCommand()})
		state.publishSnapshot(false)
		state.saveEnergy(ctx, nil)
	case domain.RequestDeviceDiscoveryRequest:
		state.logger.Info("monitor@default requesting device discovery")
		state.writeFrames(ctx, state.commands.DiscoveryRequests())
		ForRequest(msg).Respond(ctx, domain.MonitorCommandResponse{Command: msg.MonitorCommand()})
	case domain.RequestGatewayVersionRequest:
		state.logger.Info("monitor@default requesting gateway version", zap.Uint16("node", msg.Node))
		state.writeFrames(ctx, [][]byte{state.commands.VersionRequest(msg.Node)})
		ForRequest(msg).Respond(ctx, domain.MonitorCommandResponse{Command: msg.MonitorCommand()})
	case domain.SaveEnergyRequest:
		state.saveEnergy(ctx, ForRequest(msg).ReplyTo(ctx))
	case domain.WriteSerialResponse:
		if msg.HasResponseError() {
			state.logger.Error("monitor@default gateway command failed", zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Debug("monitor@default gateway command sent", zap.Int("bytes", msg.BytesWritten))
		}
	case energySaved:
		if msg.err != nil {
			state.logger.Error("monitor@default could not save energy", zap.Error(msg.err))
		}
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, domain.MonitorCommandResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: msg.err},
				Command:            domain.COMMAND_SAVE_ENERGY,
			})
		}
	case sinkWritten:
	case *actor.Stopping:
		state.saveEnergySync()
	default:
		state.logger.Debug("monitor@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MonitorActor) WaitingSerialReceive(ctx actor.Context) {
	if state.receiveQuery(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.ReadSerialResponse:
		if msg.HasResponseError() {
			state.logger.Warn("monitor@waiting serial read failed", zap.Error(msg.GetResponseError()))
		}
		state.tick(ctx, msg.Data)
		state.behavior.UnbecomeStacked()
		state.scheduleTick(ctx)
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.saveEnergySync()
	default:
		state.stash.Stash(ctx, msg)
	}
}

// receiveQuery answers read-only requests in any state.
func (state *MonitorActor) receiveQuery(ctx actor.Context) bool {
	switch msg := ctx.Message().(type) {
	case domain.GetSnapshotRequest:
		ForRequest(msg).Respond(ctx, domain.GetSnapshotResponse{Snapshot: state.engine.Snapshot()})
	case domain.GetDeviceRequest:
		resp := domain.GetDeviceResponse{}
		if rec, ok := state.engine.Device(msg.Address); ok {
			resp.Device = &rec
		}
		ForRequest(msg).Respond(ctx, resp)
	case domain.GetNodeTableRequest:
		ForRequest(msg).Respond(ctx, domain.GetNodeTableResponse{Nodes: state.engine.NodeTable()})
	default:
		return false
	}
	return true
}

func (state *MonitorActor) tick(ctx actor.Context, data []byte) {
	now := state.deps.Now()
	result := state.engine.Tick(data, now)
	state.ticks++

	for _, rec := range result.NewDevices {
		state.eventStream.Publish(domain.DeviceDiscoveredEvent{Device: rec})
	}

	snapshot := state.engine.Snapshot()

	zeroes := false
	if snapshot.NightMode.IsNight() {
		interval := time.Duration(state.config.NightMode.ZeroPublishIntervalMinutes) * time.Minute
		if result.NightModeChanged || (interval > 0 && now.Sub(state.lastZeroPublish) >= interval) {
			zeroes = true
			state.lastZeroPublish = now
		}
	}
	if result.FramesDecoded > 0 || result.NightModeChanged || result.MidnightReset || zeroes {
		for _, ev := range events.SnapshotToUpdateEvents(snapshot, state.engine.StalenessWindow(), zeroes) {
			state.eventStream.Publish(ev)
		}
	}

	for _, o := range state.deps.Observers {
		o.ObserveSnapshot(snapshot, result)
	}
	if result.FramesDecoded > 0 {
		state.writeSinks(ctx, snapshot)
	}

	if result.NightModeChanged {
		state.logger.Info("monitor: night mode changed", zap.String("mode", string(snapshot.NightMode.Mode)))
	}
	if result.MidnightReset {
		state.logger.Info("monitor: midnight reset", zap.Any("archived", result.ArchivedDay))
		state.saveEnergy(ctx, nil)
	}

	if every := uint64(state.config.MonitorConfig.StatsIntervalTicks); every > 0 && state.ticks%every == 0 {
		agg := snapshot.Aggregate
		state.logger.Info("monitor: stats",
			zap.Int("devices", agg.DeviceCount),
			zap.Int("fresh", agg.FreshDeviceCount),
			zap.Float64("power_w", agg.PowerSumW),
			zap.Float64("energy_wh", agg.EnergyWh),
			zap.Uint64("frames", agg.FramesDecoded),
			zap.Uint64("invalid_checksums", agg.InvalidChecksumCount),
			zap.Uint64("missed_frames", agg.MissedFrameCount),
			zap.Uint64("rejected", agg.RejectedFull))
	}
}

func (state *MonitorActor) publishSnapshot(zeroes bool) {
	for _, ev := range events.SnapshotToUpdateEvents(state.engine.Snapshot(), state.engine.StalenessWindow(), zeroes) {
		state.eventStream.Publish(ev)
	}
}

func (state *MonitorActor) writeFrames(ctx actor.Context, frames [][]byte) {
	ctx.Request(state.serialActor, domain.WriteSerialRequest{
		Frames: frames,
		Gap:    time.Duration(state.config.Serial.CommandGapMillis) * time.Millisecond,
	})
}

func (state *MonitorActor) writeSinks(ctx actor.Context, snapshot domain.Snapshot) {
	for _, sink := range state.deps.Sinks {
		NewBackgroundTask(ctx, func() (*sinkWritten, error) {
			c, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			defer cancel()
			if err := sink.WriteSnapshot(c, snapshot); err != nil {
				return nil, err
			}
			return &sinkWritten{}, nil
		}).OnError(func(err error) {
			state.logger.Warn("monitor: history sink write failed", zap.Error(err))
		}).PipeToAsync(ctx.Self())
	}
}

func (state *MonitorActor) saveEnergy(ctx actor.Context, replyTo *actor.PID) {
	if state.deps.Store == nil {
		if replyTo != nil {
			ctx.Send(replyTo, domain.MonitorCommandResponse{Command: domain.COMMAND_SAVE_ENERGY})
		}
		return
	}
	store := state.deps.Store
	es := state.engine.EnergyState(state.deps.Now())
	NewBackgroundTask(ctx, func() (*energySaved, error) {
		c, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		return &energySaved{replyTo: replyTo, err: store.SaveEnergy(c, es)}, nil
	}).Recover(func(err error) energySaved {
		return energySaved{replyTo: replyTo, err: err}
	}).PipeToAsync(ctx.Self())
}

func (state *MonitorActor) saveEnergySync() {
	if state.deps.Store == nil || state.engine == nil {
		return
	}
	c, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := state.deps.Store.SaveEnergy(c, state.engine.EnergyState(state.deps.Now())); err != nil {
		state.logger.Error("monitor: could not save energy on stop", zap.Error(err))
		return
	}
	state.logger.Info("monitor: energy saved")
}

func (state *MonitorActor) scheduleTick(ctx actor.Context) {
	interval := time.Duration(state.config.MonitorConfig.PollIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = DEFAULT_POLL_INTERVAL
	}
	state.scheduler.RequestOnce(interval, ctx.Self(), monitorTick{})
}
