package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/tigo2mqtt/internal/adapter/actor"
	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/mqtt"
	"github.com/berfenger/tigo2mqtt/internal/util"
	"github.com/berfenger/tigo2mqtt/internal/util/actorutil"
	"github.com/berfenger/tigo2mqtt/pkg/cca"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.MonitorConfig.PollIntervalMillis = 20
	cfg.MQTT.HADiscoveryEnable = true
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	tr, err := cca.NewTestTransportHex(frameRoofA1)
	require.NoError(err)
	store := &memStore{}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.SerialActor {
			return adactor.NewSerialActor(tr, 0, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, MonitorDeps{Store: store}, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(err)

	time.Sleep(500 * time.Millisecond)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(ok)
	assert.True(healthResp.Healthy, "healthy is true")

	// queries are forwarded to the monitor
	require.Eventually(func() bool {
		res, err := context.RequestFuture(pid, domain.GetSnapshotRequest{}, time.Second).Result()
		if err != nil {
			return false
		}
		return len(res.(domain.GetSnapshotResponse).Snapshot.Devices) == 1
	}, 3*time.Second, 20*time.Millisecond)

	// button presses reach the gateway
	context.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: domain.BUTTON_ID_DEVICE_DISCOVERY,
		Command:  mqtt.MQTT_COMMAND_PRESS,
	}})
	require.Eventually(func() bool { return len(tr.Written()) == 3 }, 2*time.Second, 20*time.Millisecond)

	// unknown buttons are dropped
	context.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: "self_destruct",
		Command:  mqtt.MQTT_COMMAND_PRESS,
	}})

	res, err = context.RequestFuture(pid, domain.ResetEnergyRequest{}, time.Second).Result()
	require.NoError(err)
	assert.Equal(domain.COMMAND_RESET_ENERGY, res.(domain.MonitorCommandResponse).Command)

	require.NoError(context.StopFuture(pid).Wait())
	assert.Positive(store.saveCount())

	as.Shutdown()
}
