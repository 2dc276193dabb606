package actor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/util"
	"github.com/berfenger/tigo2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPersistActorRequestsCheckpoints(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.Store.SaveCron = "* * * * * *"

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	var saves atomic.Int32
	monitor := context.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if msg, ok := ctx.Message().(domain.SaveEnergyRequest); ok {
			saves.Add(1)
			ctx.Respond(domain.MonitorCommandResponse{Command: msg.MonitorCommand()})
		}
	}))

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewPersistActor(&cfg, monitor, logger)
	}))

	require.Eventually(func() bool { return saves.Load() >= 2 }, 4*time.Second, 50*time.Millisecond,
		"every cron fire reaches the monitor")

	require.NoError(context.StopFuture(pid).Wait())
	time.Sleep(100 * time.Millisecond)
	after := saves.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(after, saves.Load(), "scheduler stops with the actor")

	as.Shutdown()
}
