package actor

import (
	"context"
	"fmt"

	"github.com/berfenger/tigo2mqtt/internal/config"
	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	ACTOR_ID_PERSIST     = "persist"
	DEFAULT_SAVE_CRON    = "0 0 * * * *"
	energyCheckpointName = "energy_checkpoint"
)

// PersistActor asks the monitor to checkpoint the energy accumulator on a
// cron schedule.
type PersistActor struct {
	config       *config.Config
	monitorActor *actor.PID
	sched        quartz.Scheduler
	cancel       context.CancelFunc
	logger       *zap.Logger
}

func NewPersistActor(config *config.Config, monitorActor *actor.PID, logger *zap.Logger) *PersistActor {
	return &PersistActor{
		config:       config,
		monitorActor: monitorActor,
		logger:       actorutil.ActorLogger(ACTOR_ID_PERSIST, logger),
	}
}

func (state *PersistActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		if err := state.start(ctx); err != nil {
			state.logger.Error("persist@started could not schedule checkpoint", zap.Error(err))
			panic(err)
		}
	case domain.SaveEnergyRequest:
		ctx.Request(state.monitorActor, msg)
	case domain.MonitorCommandResponse:
		if msg.HasResponseError() {
			state.logger.Warn("persist@default checkpoint failed", zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Debug("persist@default checkpoint saved")
		}
	case *actor.Stopping, *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("persist@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PersistActor) start(ctx actor.Context) error {
	expr := state.config.Store.SaveCron
	if expr == "" {
		expr = DEFAULT_SAVE_CRON
	}
	trigger, err := quartz.NewCronTrigger(expr)
	if err != nil {
		return fmt.Errorf("invalid save cron %q: %w", expr, err)
	}
	sched, err := quartz.NewStdScheduler()
	if err != nil {
		return err
	}

	root := ctx.ActorSystem().Root
	self := ctx.Self()
	checkpoint := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		root.Send(self, domain.SaveEnergyRequest{})
		return true, nil
	})

	runCtx, cancel := context.WithCancel(context.Background())
	sched.Start(runCtx)
	if err := sched.ScheduleJob(quartz.NewJobDetail(checkpoint, quartz.NewJobKey(energyCheckpointName)), trigger); err != nil {
		cancel()
		sched.Stop()
		return err
	}
	state.sched = sched
	state.cancel = cancel
	state.logger.Info("persist: energy checkpoint scheduled", zap.String("cron", expr))
	return nil
}

func (state *PersistActor) stop() {
	if state.sched == nil {
		return
	}
	state.sched.Stop()
	state.cancel()
	state.sched = nil
}
