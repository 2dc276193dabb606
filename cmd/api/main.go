package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/tigo2mqtt/internal/adapter/actor"
	"github.com/berfenger/tigo2mqtt/internal/adapter/influx"
	"github.com/berfenger/tigo2mqtt/internal/adapter/store"
	"github.com/berfenger/tigo2mqtt/internal/config"
	"github.com/berfenger/tigo2mqtt/internal/core/actor"
	"github.com/berfenger/tigo2mqtt/internal/core/port"
	"github.com/berfenger/tigo2mqtt/internal/observability"
	"github.com/berfenger/tigo2mqtt/internal/server"
	"github.com/berfenger/tigo2mqtt/internal/util/actorutil"
	"github.com/berfenger/tigo2mqtt/pkg/cca"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	clock, err := cfg.Clock.Build()
	if err != nil {
		logger.Fatal("invalid clock config", zap.Error(err))
	}
	staleness := time.Duration(cfg.Tigo.StalenessMinutes) * time.Minute

	deps := actor.MonitorDeps{Clock: clock}
	var closers []func() error

	// energy persistence
	if cfg.Store.Path != "" {
		st, err := store.OpenSQLite(cfg.Store.Path, logger)
		if err != nil {
			logger.Fatal("cannot open energy store", zap.String("path", cfg.Store.Path), zap.Error(err))
		}
		deps.Store = st
		closers = append(closers, st.Close)
	}

	// time series history
	if cfg.Influx.Enable {
		sink, err := influx.NewSink(cfg.Influx, staleness, logger)
		if err != nil {
			logger.Fatal("cannot connect to influxdb", zap.String("url", cfg.Influx.URL), zap.Error(err))
		}
		deps.Sinks = append(deps.Sinks, port.HistorySink(sink))
		closers = append(closers, sink.Close)
	}

	// prometheus
	var metricsHandler http.Handler
	if cfg.Metrics.Enable {
		metrics := observability.NewMetrics(staleness)
		deps.Observers = append(deps.Observers, metrics)
		metricsHandler = metrics.Handler()
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, serialActorProvider(cfg, logger), mqttActorProvider(cfg, logger), deps, logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Error("cannot spawn master actor", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid, metricsHandler)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	// the monitor saves energy while stopping, so stores close afterwards
	if err := ctx.StopFuture(pid).Wait(); err != nil {
		logger.Warn("master actor did not stop in time", zap.Error(err))
	}
	as.Shutdown()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}
}

func initConfig() (*config.Config, error) {

	// alias PORT => TIGO_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("TIGO_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("tigo")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, fmt.Errorf("invalid base topic: %w", err)
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, fmt.Errorf("invalid homeassistant discovery topic: %w", err)
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func serialActorProvider(cfg *config.Config, logger *zap.Logger) actor.SerialActorProvider {
	return func() *adactor.SerialActor {
		transport := cca.NewSerialTransport(cca.SerialConfig{
			Device:      cfg.Serial.Device,
			BaudRate:    cfg.Serial.BaudRate,
			ReadTimeout: time.Duration(cfg.Serial.ReadTimeoutMillis) * time.Millisecond,
			FlowControl: cfg.Serial.FlowControl,
		}, logger)
		return adactor.NewSerialActor(transport, cfg.Serial.ReadMaxBytes, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("serial.device", "/dev/ttyUSB0")
	viper.SetDefault("serial.baud_rate", cca.DefaultBaudRate)
	viper.SetDefault("serial.read_timeout_millis", 20)
	viper.SetDefault("serial.read_max_bytes", adactor.DEFAULT_READ_MAX_BYTES)
	viper.SetDefault("serial.flow_control", false)
	viper.SetDefault("serial.command_gap_millis", 50)
	viper.SetDefault("tigo.number_of_devices", 32)
	viper.SetDefault("tigo.staleness_minutes", 5)
	viper.SetDefault("tigo.history_days", 7)
	viper.SetDefault("validator.header", hex.EncodeToString(cca.DefaultHeader))
	viper.SetDefault("validator.slot_min", 0)
	viper.SetDefault("validator.slot_max", cca.DefaultSlotMax)
	viper.SetDefault("validator.max_resync_scan", cca.DefaultMaxResyncScan)
	viper.SetDefault("validator.max_buffer", cca.DefaultMaxBuffer)
	viper.SetDefault("scaling.vin_scale", 0.05)
	viper.SetDefault("scaling.vout_scale", 0.10)
	viper.SetDefault("scaling.iin_scale", 0.005)
	viper.SetDefault("scaling.temp_scale", 0.1)
	viper.SetDefault("scaling.power_calibration", 1.0)
	viper.SetDefault("scaling.default_power_factor", 1.0)
	viper.SetDefault("night_mode.timeout_minutes", 60)
	viper.SetDefault("night_mode.zero_publish_interval_minutes", 10)
	viper.SetDefault("night_mode.threshold_w", 0)
	viper.SetDefault("clock.source", config.CLOCK_SOURCE_SYSTEM)
	viper.SetDefault("clock.min_valid_year", 2020)
	viper.SetDefault("reset_at_midnight", true)
	viper.SetDefault("mqtt.enable", true)
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "tigo")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("monitor.poll_interval_millis", 30000)
	viper.SetDefault("monitor.stats_interval_ticks", 120)
	viper.SetDefault("store.save_cron", actor.DEFAULT_SAVE_CRON)
	viper.SetDefault("influx.enable", false)
	viper.SetDefault("metrics.enable", true)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Influx.Token = "*redacted*"
	cfg.Server.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
