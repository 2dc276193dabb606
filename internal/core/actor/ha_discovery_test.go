package actor

import (
	"testing"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/core/events"
	"github.com/berfenger/tigo2mqtt/internal/util"
	"github.com/berfenger/tigo2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubChild answers health checks as id and forwards discovery requests to out.
func stubChild(id string, nodes []domain.DeviceProfile, out chan<- domain.PublishDiscoveryRequest) *actor.Props {
	return actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.ActorHealthRequest:
			ctx.Respond(domain.ActorHealthResponse{Id: id, Healthy: true})
		case domain.GetNodeTableRequest:
			ctx.Respond(domain.GetNodeTableResponse{Nodes: nodes})
		case domain.PublishDiscoveryRequest:
			out <- msg
		}
	})
}

func TestHADiscoveryActor(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	published := make(chan domain.PublishDiscoveryRequest, 8)
	mqttPID := context.Spawn(stubChild(domain.ACTOR_ID_MQTT, nil, published))
	monitorPID := context.Spawn(stubChild(domain.ACTOR_ID_MONITOR, cfg.Tigo.Profiles(), nil))

	es := &eventstream.EventStream{}
	context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&cfg, mqttPID, monitorPID, es, logger)
	}))

	var first domain.PublishDiscoveryRequest
	select {
	case first = <-published:
	case <-time.After(3 * time.Second):
		require.FailNow("no discovery published")
	}

	bridge := domain.BridgeDevice(cfg.MQTT.BaseTopic)
	perDevice := len(events.DeviceSensors(cfg.Tigo.Profiles()[0], bridge))
	expected := len(domain.BridgeSensors(bridge)) + len(domain.AggregateSensors(bridge)) + 2*perDevice
	assert.Len(first.Sensors, expected)
	assert.Len(first.Buttons, 4)

	// wait for the event stream subscription
	time.Sleep(200 * time.Millisecond)

	unmapped := domain.DeviceRecord{DeviceProfile: domain.DeviceProfile{Address: "slot_64", Slot: 0x40}}
	es.Publish(domain.DeviceDiscoveredEvent{Device: unmapped})
	es.Publish(domain.DeviceDiscoveredEvent{Device: unmapped})
	// already announced at start
	es.Publish(domain.DeviceDiscoveredEvent{Device: domain.DeviceRecord{DeviceProfile: cfg.Tigo.Profiles()[0]}})

	select {
	case next := <-published:
		assert.Len(next.Sensors, perDevice)
		assert.Empty(next.Buttons)
	case <-time.After(2 * time.Second):
		require.FailNow("new device not announced")
	}

	select {
	case extra := <-published:
		assert.Failf("unexpected discovery", "%d sensors", len(extra.Sensors))
	case <-time.After(300 * time.Millisecond):
	}

	as.Shutdown()
}
