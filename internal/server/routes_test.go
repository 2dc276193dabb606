package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var testNow = time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

func fakeMaster(commands chan<- string) *actor.Props {
	rec := domain.DeviceRecord{
		DeviceProfile: domain.DeviceProfile{Address: "04C0-1234", Name: "Roof A1", Slot: 0x25},
		Readings:      domain.Readings{PowerW: 210.5},
		LastSeen:      testNow,
	}
	snapshot := domain.Snapshot{
		Devices:   []domain.DeviceRecord{rec},
		Aggregate: domain.AggregateState{PowerSumW: 210.5, EnergyWh: 1200, DeviceCount: 1, FreshDeviceCount: 1},
		NightMode: domain.NightModeState{Mode: domain.NIGHT_MODE_DAY},
		History:   []domain.DailyEnergy{{Day: 20240301, EnergyWh: 2100}},
		TakenAt:   testNow,
	}
	return actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.ActorHealthRequest:
			ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: true})
		case domain.GetSnapshotRequest:
			ctx.Respond(domain.GetSnapshotResponse{Snapshot: snapshot})
		case domain.GetDeviceRequest:
			resp := domain.GetDeviceResponse{}
			if msg.Address == rec.Address {
				r := rec
				resp.Device = &r
			}
			ctx.Respond(resp)
		case domain.GetNodeTableRequest:
			ctx.Respond(domain.GetNodeTableResponse{Nodes: []domain.DeviceProfile{rec.DeviceProfile}})
		case domain.MonitorCommandRequest:
			commands <- msg.MonitorCommand()
			ctx.Respond(domain.MonitorCommandResponse{Command: msg.MonitorCommand()})
		}
	})
}

func newTestServer(t *testing.T, username, password string) (http.Handler, chan string) {
	t.Helper()
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)
	commands := make(chan string, 4)
	pid := as.Root.Spawn(fakeMaster(commands))
	s := &Server{
		rootContext: as.Root,
		masterActor: pid,
		username:    username,
		password:    password,
		metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("tigo_power_watts 210.5\n"))
		}),
	}
	return s.RegisterRoutes(), commands
}

func do(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRoutes(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	h, commands := newTestServer(t, "", "")

	rec := do(h, http.MethodGet, "/healthcheck")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("health_check: OK", rec.Body.String())

	rec = do(h, http.MethodGet, "/metrics")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), "tigo_power_watts")

	rec = do(h, http.MethodGet, "/version")
	assert.Equal(http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/api/devices")
	require.Equal(http.StatusOK, rec.Code)
	var devices []domain.DeviceRecord
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &devices))
	require.Len(devices, 1)
	assert.Equal("Roof A1", devices[0].Name)

	rec = do(h, http.MethodGet, "/api/devices/04C0-1234")
	assert.Equal(http.StatusOK, rec.Code)
	rec = do(h, http.MethodGet, "/api/devices/unknown")
	assert.Equal(http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodGet, "/api/aggregate")
	require.Equal(http.StatusOK, rec.Code)
	var agg domain.AggregateState
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &agg))
	assert.Equal(1200.0, agg.EnergyWh)

	rec = do(h, http.MethodGet, "/api/night_mode")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"mode":"day"`)

	rec = do(h, http.MethodGet, "/api/energy/history")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), "20240301")

	rec = do(h, http.MethodGet, "/api/nodes.yaml")
	require.Equal(http.StatusOK, rec.Code)
	var doc nodeTableDocument
	require.NoError(yaml.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(doc.Nodes, 1)
	assert.Equal(uint8(0x25), doc.Nodes[0].Slot)

	rec = do(h, http.MethodPost, "/api/commands/"+domain.COMMAND_RESET_ENERGY)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal(domain.COMMAND_RESET_ENERGY, <-commands)

	rec = do(h, http.MethodPost, "/api/commands/"+domain.COMMAND_RESET_PEAK_POWER)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal(domain.COMMAND_RESET_PEAK_POWER, <-commands)

	rec = do(h, http.MethodPost, "/api/commands/self_destruct")
	assert.Equal(http.StatusNotFound, rec.Code)
}

func TestRoutesBasicAuth(t *testing.T) {

	assert := assert.New(t)

	h, _ := newTestServer(t, "admin", "secret")

	rec := do(h, http.MethodGet, "/api/aggregate")
	assert.Equal(http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/aggregate", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(http.StatusOK, rec.Code)

	// health stays open for container health checks
	rec = do(h, http.MethodGet, "/healthcheck")
	assert.Equal(http.StatusOK, rec.Code)
	assert.False(strings.HasPrefix(rec.Body.String(), "Unauthorized"))
}
