package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/config"
	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/core/events"
	"github.com/berfenger/tigo2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// HADiscoveryActor publishes Home Assistant discovery documents for the
// bridge, the aggregate and every optimizer. Optimizers that show up after
// start are announced when the monitor reports them.
type HADiscoveryActor struct {
	config              *config.Config
	behavior            actor.Behavior
	stash               *actorutil.Stash
	mqttActor           *actor.PID
	monitorActor        *actor.PID
	eventStream         *eventstream.EventStream
	eventStreamSub      *eventstream.Subscription
	bridgeDevice        domain.Device
	announced           map[string]bool
	mqttActorHealthy    bool
	monitorActorHealthy bool
	healthyRecv         int

	logger *zap.Logger
}

type deviceDiscovered struct {
	event domain.DeviceDiscoveredEvent
}

func NewHADiscoveryActor(config *config.Config, mqttActor, monitorActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:       config,
		mqttActor:    mqttActor,
		monitorActor: monitorActor,
		eventStream:  eventStream,
		bridgeDevice: domain.BridgeDevice(config.MQTT.BaseTopic),
		announced:    map[string]bool{},
		behavior:     actor.NewBehavior(),
		stash:        &actorutil.Stash{},
		logger:       actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		state.healthyRecv = 0
		state.mqttActorHealthy = false
		state.monitorActorHealthy = false
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.monitorActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MONITOR,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			case domain.ACTOR_ID_MONITOR:
				state.monitorActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {
			if !state.mqttActorHealthy || !state.monitorActorHealthy {
				panic(errors.New("MQTT Actor or Monitor Actor are not healthy"))
			}
			actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.monitorActor, domain.GetNodeTableRequest{}, 2*time.Second), func(err error) any {
				return domain.GetNodeTableResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				}
			})
			state.behavior.Become(state.WaitingNodesReceive)
		}
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingNodesReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetNodeTableResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@nodes GetNodeTableResponse", zap.Int("nodes", len(msg.Nodes)))

		var sensors []domain.GenericSensor
		sensors = append(sensors, domain.BridgeSensors(state.bridgeDevice)...)
		sensors = append(sensors, domain.AggregateSensors(state.bridgeDevice)...)
		for _, node := range msg.Nodes {
			sensors = append(sensors, state.nodeSensors(node)...)
		}
		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors: sensors,
			Buttons: domain.BridgeButtons(state.bridgeDevice),
		})

		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.eventStreamSub = state.eventStream.SubscribeWithPredicate(func(evt any) {
			root.Send(self, deviceDiscovered{event: evt.(domain.DeviceDiscoveredEvent)})
		}, func(evt any) bool {
			_, ok := evt.(domain.DeviceDiscoveredEvent)
			return ok
		})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@nodes: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case deviceDiscovered:
		sensors := state.nodeSensors(msg.event.Device.DeviceProfile)
		if len(sensors) == 0 {
			return
		}
		state.logger.Info("hadiscovery@default announcing new device", zap.String("address", msg.event.Device.Address))
		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{Sensors: sensors})
	case *actor.Restarting, *actor.Stopping:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@default: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// nodeSensors returns nothing for a device that was already announced.
func (state *HADiscoveryActor) nodeSensors(profile domain.DeviceProfile) []domain.GenericSensor {
	if profile.Address == "" || state.announced[profile.Address] {
		return nil
	}
	state.announced[profile.Address] = true
	return events.DeviceSensors(profile, state.bridgeDevice)
}

func (state *HADiscoveryActor) unsubscribe() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
