package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/config"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

const requestTimeout = 5 * time.Second

type Server struct {
	port        uint
	httpLog     bool
	username    string
	password    string
	rootContext *actor.RootContext
	masterActor *actor.PID
	metrics     http.Handler
}

// NewServer builds the HTTP API. metrics may be nil, in which case /metrics
// is not served.
func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, metrics http.Handler) *http.Server {
	NewServer := &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		masterActor: masterActor,
		httpLog:     cfg.HttpLog,
		username:    cfg.Server.Username,
		password:    cfg.Server.Password,
		metrics:     metrics,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
