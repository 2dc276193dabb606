package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gopkg.in/yaml.v3"
)

type versionResponse struct {
	Version    string    `json:"version"`
	Revision   string    `json:"revision"`
	LastCommit time.Time `json:"last_commit"`
	DirtyBuild bool      `json:"dirty_build"`
}

type nodeTableDocument struct {
	Nodes []domain.DeviceProfile `yaml:"nodes"`
}

type commandResponse struct {
	Command string `json:"command"`
	Status  string `json:"status"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/version", s.VersionHandler)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	api := e.Group("/api")
	if s.username != "" && s.password != "" {
		api.Use(middleware.BasicAuth(func(username, password string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1 &&
				subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1, nil
		}))
	}
	api.GET("/devices", s.DevicesHandler)
	api.GET("/devices/:address", s.DeviceHandler)
	api.GET("/aggregate", s.AggregateHandler)
	api.GET("/night_mode", s.NightModeHandler)
	api.GET("/energy/history", s.EnergyHistoryHandler)
	api.GET("/nodes", s.NodesHandler)
	api.GET("/nodes.yaml", s.NodesYAMLHandler)
	api.POST("/commands/:command", s.CommandHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) VersionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, versionResponse{
		Version:    versioninfo.Short(),
		Revision:   versioninfo.Revision,
		LastCommit: versioninfo.LastCommit,
		DirtyBuild: versioninfo.DirtyBuild,
	})
}

func (s *Server) DevicesHandler(c echo.Context) error {
	snapshot, err := s.snapshot()
	if err != nil {
		return err
	}
	if snapshot.Devices == nil {
		snapshot.Devices = []domain.DeviceRecord{}
	}
	return c.JSON(http.StatusOK, snapshot.Devices)
}

func (s *Server) DeviceHandler(c echo.Context) error {
	res, err := request[domain.GetDeviceResponse](s, domain.GetDeviceRequest{Address: c.Param("address")})
	if err != nil {
		return err
	}
	if res.Device == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown device")
	}
	return c.JSON(http.StatusOK, res.Device)
}

func (s *Server) AggregateHandler(c echo.Context) error {
	snapshot, err := s.snapshot()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snapshot.Aggregate)
}

func (s *Server) NightModeHandler(c echo.Context) error {
	snapshot, err := s.snapshot()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snapshot.NightMode)
}

func (s *Server) EnergyHistoryHandler(c echo.Context) error {
	snapshot, err := s.snapshot()
	if err != nil {
		return err
	}
	history := snapshot.History
	if history == nil {
		history = []domain.DailyEnergy{}
	}
	return c.JSON(http.StatusOK, history)
}

func (s *Server) NodesHandler(c echo.Context) error {
	nodes, err := s.nodeTable()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nodes)
}

func (s *Server) NodesYAMLHandler(c echo.Context) error {
	nodes, err := s.nodeTable()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(nodeTableDocument{Nodes: nodes})
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "application/yaml", out)
}

func (s *Server) CommandHandler(c echo.Context) error {
	cmd, err := domain.CommandFromName(c.Param("command"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	res, err := request[domain.MonitorCommandResponse](s, cmd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, commandResponse{Command: res.Command, Status: "ok"})
}

func (s *Server) snapshot() (domain.Snapshot, error) {
	res, err := request[domain.GetSnapshotResponse](s, domain.GetSnapshotRequest{})
	if err != nil {
		return domain.Snapshot{}, err
	}
	return res.Snapshot, nil
}

// request asks the master actor and maps failures to HTTP errors.
func request[T domain.ActorResponse](s *Server, msg any) (T, error) {
	var zero T
	res, err := s.rootContext.RequestFuture(s.masterActor, msg, requestTimeout).Result()
	if err != nil {
		return zero, echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	resp, ok := res.(T)
	if !ok {
		return zero, echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	if resp.HasResponseError() {
		return zero, echo.NewHTTPError(http.StatusInternalServerError, resp.GetResponseError().Error())
	}
	return resp, nil
}

func (s *Server) nodeTable() ([]domain.DeviceProfile, error) {
	res, err := request[domain.GetNodeTableResponse](s, domain.GetNodeTableRequest{})
	if err != nil {
		return nil, err
	}
	if res.Nodes == nil {
		return []domain.DeviceProfile{}, nil
	}
	return res.Nodes, nil
}
