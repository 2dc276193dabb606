package actor

import (
	"testing"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/util"
	"github.com/berfenger/tigo2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, &es, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(ok)
	assert.True(resp.Healthy)

	es.Publish(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_TOTAL_POWER,
		},
		Value:    245.26,
		Decimals: 1,
	})
	es.Publish(domain.BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_NIGHT_MODE,
		},
		Value: true,
	})
	// not a sensor update, filtered out
	es.Publish(domain.DeviceDiscoveredEvent{})

	time.Sleep(300 * time.Millisecond)

	result, err = context.RequestFuture(pid, getPublishedMessages{}, time.Second).Result()
	require.NoError(err)
	published := result.([]rawMessage)
	require.Len(published, 2)
	assert.Equal("tigo/sensor/total_power/state", published[0].topic)
	assert.Equal("245.3", published[0].message)
	assert.Equal("tigo/binary_sensor/night_mode/state", published[1].topic)
	assert.Equal("on", published[1].message)

	context.Stop(pid)

	time.Sleep(200 * time.Millisecond)

	as.Shutdown()
}
