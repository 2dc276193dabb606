package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/util/actorutil"
	"github.com/berfenger/tigo2mqtt/pkg/cca"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	DEFAULT_READ_MAX_BYTES = 1024
	serialOpTimeout        = 5 * time.Second
)

// SerialActor owns the gateway transport. Reads and writes are serialized:
// while one is in flight every other request is stashed.
type SerialActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	transport cca.Transport
	readMax   int
	logger    *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewSerialActor(transport cca.Transport, readMax int, logger *zap.Logger) *SerialActor {
	if readMax <= 0 {
		readMax = DEFAULT_READ_MAX_BYTES
	}
	act := &SerialActor{
		transport: transport,
		readMax:   readMax,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_SERIAL, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *SerialActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *SerialActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("serial@starting started")
		if err := state.transport.Open(); err != nil {
			state.logger.Error("serial@starting could not open transport", zap.Error(err))
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.transport.Close()
	default:
		state.logger.Debug("serial@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *SerialActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("serial@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SERIAL,
			Healthy: true,
			State:   "idle",
		})
	case domain.ReadSerialRequest:
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		limit := msg.MaxBytes
		if limit <= 0 || limit > state.readMax {
			limit = state.readMax
		}
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.ReadSerialResponse, error) {
			return state.read(limit)
		}), mapTaskResult[domain.ReadSerialResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ReadSerialResponse{ActorResponseMixIn: domain.ErrorResponse(err)},
				replyTo: sender,
			}
		}).WithTimeout(serialOpTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingSerial)
	case domain.WriteSerialRequest:
		state.logger.Debug("serial@default WriteSerialRequest", zap.Int("frames", len(msg.Frames)))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.WriteSerialResponse {
			resp := state.write(msg.Frames, msg.Gap)
			return &resp
		}), mapTaskResult[domain.WriteSerialResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.WriteSerialResponse{ActorResponseMixIn: domain.ErrorResponse(err)},
				replyTo: sender,
			}
		}).WithTimeout(serialOpTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingSerial)
	case *actor.Stopping:
		state.transport.Close()
	default:
		state.logger.Debug("serial@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SerialActor) WaitingSerial(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("serial@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.transport.Close()
	default:
		state.logger.Debug("serial@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// read never drops bytes already taken off the wire: a failing transport
// still hands back what it read before the error.
func (state *SerialActor) read(limit int) (*domain.ReadSerialResponse, error) {
	data, err := cca.ReadAvailable(state.transport, limit)
	if err != nil {
		state.logger.Warn("serial: read failed", zap.Error(err), zap.Int("partial", len(data)))
		return &domain.ReadSerialResponse{Data: data, ActorResponseMixIn: domain.ErrorResponse(err)}, nil
	}
	return &domain.ReadSerialResponse{Data: data}, nil
}

func (state *SerialActor) write(frames [][]byte, gap time.Duration) domain.WriteSerialResponse {
	written := 0
	for i, f := range frames {
		if i > 0 && gap > 0 {
			time.Sleep(gap)
		}
		if err := cca.WriteFrame(state.transport, f); err != nil {
			state.logger.Error("serial: write failed", zap.Error(err), zap.Int("frame", i))
			return domain.WriteSerialResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
				BytesWritten:       written,
			}
		}
		written += len(f)
	}
	return domain.WriteSerialResponse{BytesWritten: written}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
