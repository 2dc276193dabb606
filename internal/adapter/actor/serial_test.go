package actor

import (
	"bytes"
	"syscall"
	"testing"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/util/actorutil"
	"github.com/berfenger/tigo2mqtt/pkg/cca"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSerialActorRead(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	tr, err := cca.NewTestTransportHex("503025322105", "B084FF443F8F")
	require.NoError(err)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewSerialActor(tr, 0, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ReadSerialRequest{}, 2*time.Second).Result()
	require.NoError(err)
	resp := result.(domain.ReadSerialResponse)
	require.False(resp.HasResponseError())
	assert.Equal([]byte{0x50, 0x30, 0x25, 0x32, 0x21, 0x05}, resp.Data, "one chunk per poll")
	assert.True(tr.IsOpen())

	result, err = context.RequestFuture(pid, domain.ReadSerialRequest{}, 2*time.Second).Result()
	require.NoError(err)
	assert.Len(result.(domain.ReadSerialResponse).Data, 6)

	result, err = context.RequestFuture(pid, domain.ReadSerialRequest{}, 2*time.Second).Result()
	require.NoError(err)
	assert.Empty(result.(domain.ReadSerialResponse).Data, "nothing buffered is not an error")

	context.Stop(pid)
	time.Sleep(200 * time.Millisecond)
	assert.False(tr.IsOpen(), "transport closed on stop")

	as.Shutdown()
}

func TestSerialActorReadKeepsPartialDataOnError(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	chunk := bytes.Repeat([]byte{0x50}, 256)
	tr := cca.NewTestTransport(chunk)
	tr.FailReads(syscall.EIO)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewSerialActor(tr, 0, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ReadSerialRequest{}, 2*time.Second).Result()
	require.NoError(err)
	resp := result.(domain.ReadSerialResponse)
	require.True(resp.HasResponseError())
	assert.ErrorIs(resp.GetResponseError(), syscall.EIO)
	assert.Equal(chunk, resp.Data, "bytes read before the failure are returned")

	context.Stop(pid)
	as.Shutdown()
}

func TestSerialActorWriteTogglesFlowControl(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	tr := cca.NewTestTransport()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewSerialActor(tr, 0, logger) }))

	frames := cca.NewCommandBuilder(0).DiscoveryRequests()
	result, err := context.RequestFuture(pid, domain.WriteSerialRequest{Frames: frames, Gap: time.Millisecond}, 2*time.Second).Result()
	require.NoError(err)
	resp := result.(domain.WriteSerialResponse)
	require.False(resp.HasResponseError())

	total := 0
	for _, f := range frames {
		total += len(f)
	}
	assert.Equal(total, resp.BytesWritten)
	assert.Equal(frames, tr.Written())
	assert.Equal([]bool{true, false, true, false, true, false}, tr.TransmitToggles())

	result, err = context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(err)
	assert.True(result.(domain.ActorHealthResponse).Healthy)

	context.Stop(pid)
	as.Shutdown()
}
