package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/absmach/fedcycle"
	"github.com/absmach/fedcycle/coordinator"
	"github.com/absmach/fedcycle/coordinator/api"
	"github.com/absmach/fedcycle/coordinator/middleware"
	"github.com/absmach/fedcycle/pkg/auth"
	"github.com/absmach/fedcycle/pkg/cron"
	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/events"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/absmach/fedcycle/pkg/mqtt"
	"github.com/absmach/fedcycle/pkg/storage"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName         = "coordinator"
	defHTTPPort     = "7070"
	envPrefixHTTP   = "FEDCYCLE_HTTP_"
	pathEnv         = ".env"
	shutdownTimeout = 30 * time.Second
)

type envConfig struct {
	LogLevel      string        `env:"FEDCYCLE_LOG_LEVEL"              envDefault:"info"`
	InstanceID    string        `env:"FEDCYCLE_INSTANCE_ID"`
	ConfigPath    string        `env:"FEDCYCLE_CONFIG"`
	SweepSchedule string        `env:"FEDCYCLE_SWEEP_SCHEDULE"         envDefault:"@every 5s"`
	Compression   bool          `env:"FEDCYCLE_CHECKPOINT_COMPRESSION" envDefault:"false"`
	MQTTAddress   string        `env:"FEDCYCLE_MQTT_ADDRESS"`
	MQTTQoS       uint8         `env:"FEDCYCLE_MQTT_QOS"               envDefault:"2"`
	MQTTTimeout   time.Duration `env:"FEDCYCLE_MQTT_TIMEOUT"           envDefault:"30s"`
	ClientID      string        `env:"FEDCYCLE_CLIENT_ID"`
	ClientKey     string        `env:"FEDCYCLE_CLIENT_KEY"`
	DomainID      string        `env:"FEDCYCLE_DOMAIN_ID"`
	ChannelID     string        `env:"FEDCYCLE_CHANNEL_ID"`
	OTELURL       url.URL       `env:"FEDCYCLE_OTEL_URL"`
	TraceRatio    float64       `env:"FEDCYCLE_TRACE_RATIO"            envDefault:"0"`
	Storage       storage.Config
	Auth          auth.Config
	Coordinator   coordinator.Config
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	bootstrap := &fedcycle.Config{}
	if cfg.ConfigPath != "" {
		var err error
		if bootstrap, err = fedcycle.LoadConfig(cfg.ConfigPath); err != nil {
			logger.Error("failed to load bootstrap config", slog.String("error", err.Error()))

			return
		}
		mergeIdentity(&cfg, bootstrap.Coordinator)
	}

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	repos, err := storage.NewRepositories(cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize storage", slog.String("error", err.Error()))

		return
	}
	if repos.Closer != nil {
		defer repos.Closer.Close()
	}

	authn := auth.NewAnonymous()
	if cfg.Auth.Secret != "" {
		if authn, err = auth.NewJWT(cfg.Auth); err != nil {
			logger.Error("failed to initialize authenticator", slog.String("error", err.Error()))

			return
		}
	}

	schedule, err := cron.Parse(cfg.SweepSchedule)
	if err != nil {
		logger.Error("failed to parse sweep schedule", slog.String("error", err.Error()))

		return
	}

	topics := events.NewTopicBuilder(cfg.DomainID, cfg.ChannelID)
	emitter := events.NewNoop()
	var pubsub mqtt.PubSub
	if cfg.MQTTAddress != "" {
		id := cfg.ClientID
		if id == "" {
			id = svcName + "-" + cfg.InstanceID
		}
		pubsub, err = mqtt.NewPubSub(mqtt.Config{
			URL:       cfg.MQTTAddress,
			ClientID:  id,
			Username:  cfg.ClientID,
			Password:  cfg.ClientKey,
			QoS:       cfg.MQTTQoS,
			Timeout:   cfg.MQTTTimeout,
			WillTopic: topics.CoordinatorStatusTopic(),
			Will:      events.CoordinatorStatus{Status: events.StatusOffline, CoordinatorID: cfg.InstanceID},
		}, logger)
		if err != nil {
			logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := pubsub.Disconnect(context.Background()); err != nil {
				logger.Error("error disconnecting mqtt", slog.Any("error", err))
			}
		}()
		emitter = events.NewMQTTEmitter(pubsub, topics)
	}

	svc := coordinator.NewService(repos, authn, fl.NewCBORCodec(cfg.Compression), emitter, cfg.Coordinator, logger)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := svc.Shutdown(sctx); err != nil {
			logger.Error("error shutting down coordinator", slog.Any("error", err))
		}
	}()

	if err := svc.Recover(ctx); err != nil {
		logger.Error("failed to recover cycles", slog.String("error", err.Error()))

		return
	}

	if err := hostProcesses(ctx, svc, repos, bootstrap.Processes, logger); err != nil {
		logger.Error("failed to host bootstrap processes", slog.String("error", err.Error()))

		return
	}

	if pubsub != nil {
		if err := coordinator.Subscribe(ctx, topics, pubsub, svc, logger); err != nil {
			logger.Error("failed to subscribe to worker metrics", slog.String("error", err.Error()))

			return
		}
		status := events.CoordinatorStatus{Status: events.StatusOnline, CoordinatorID: cfg.InstanceID, Timestamp: time.Now().UTC()}
		if err := pubsub.Publish(ctx, topics.CoordinatorStatusTopic(), status); err != nil {
			logger.Warn("failed to publish coordinator status", slog.String("error", err.Error()))
		}
	}

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	sweeper := coordinator.NewSweeper(svc, schedule, logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return sweeper.Start(ctx)
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}

func mergeIdentity(cfg *envConfig, c fedcycle.CoordinatorConfig) {
	if cfg.ClientID == "" {
		cfg.ClientID = c.ClientID
	}
	if cfg.ClientKey == "" {
		cfg.ClientKey = c.ClientKey
	}
	if cfg.DomainID == "" {
		cfg.DomainID = c.DomainID
	}
	if cfg.ChannelID == "" {
		cfg.ChannelID = c.ChannelID
	}
}

// hostProcesses hosts bootstrap processes that are not stored yet.
func hostProcesses(ctx context.Context, svc coordinator.Service, repos *storage.Repositories, processes []fedcycle.ProcessConfig, logger *slog.Logger) error {
	for _, pc := range processes {
		_, err := repos.Processes.GetByName(ctx, pc.Name, pc.Version)
		switch {
		case err == nil:
			logger.Info("process already hosted", slog.String("name", pc.Name), slog.String("version", pc.Version))

			continue
		case !errors.Is(err, pkgerrors.ErrNotFound):
			return err
		}

		a, err := pc.ReadArtifacts()
		if err != nil {
			return err
		}

		if _, _, err := svc.HostProcess(ctx, coordinator.HostRequest{
			Name:          pc.Name,
			Version:       pc.Version,
			Model:         a.Model,
			Plans:         a.Plans,
			AveragingPlan: a.AveragingPlan,
			ClientConfig:  pc.ClientConfig,
			ServerConfig:  pc.ServerConfig,
		}); err != nil {
			return fmt.Errorf("host %s: %w", pc.Name, err)
		}
	}

	return nil
}
