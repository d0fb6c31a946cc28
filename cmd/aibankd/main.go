package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AIBank-Agent/internal/a2ui"
	"AIBank-Agent/internal/agent"
	"AIBank-Agent/internal/api"
	"AIBank-Agent/internal/banking"
	"AIBank-Agent/internal/config"
	"AIBank-Agent/internal/events"
	"AIBank-Agent/internal/geocode"
	"AIBank-Agent/internal/llm"
	"AIBank-Agent/internal/llm/openai"
	"AIBank-Agent/internal/mcpserver"
	"AIBank-Agent/internal/observability/alerting"
	"AIBank-Agent/internal/observability/metrics"
	"AIBank-Agent/pkg/logger"
)

// main is the entry point of the aibankd daemon.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("aibankd failed: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath, explicit := os.LookupEnv("AIBANK_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "aibank.yaml")
		explicit = false
	}

	cfg, err := config.Load(configPath, explicit)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
			Compress:   cfg.Log.Audit.Compress,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	appLogger := logger.Named("aibankd")

	var registry *metrics.Registry
	if cfg.Metrics.IsEnabled() {
		registry = metrics.New(cfg.Metrics.Namespace)
	}

	alerter := createAlerter(cfg)

	templates, err := a2ui.Load()
	if err != nil {
		return err
	}

	// The dataset is built once and read-only afterwards.
	gateway := banking.NewMockGateway(time.Now())

	geocoder, closeGeocoder, err := createGeocoder(ctx, cfg, registry, alerter)
	if err != nil {
		return err
	}
	defer closeGeocoder()

	runtime, err := createRuntime(cfg, gateway, geocoder, registry)
	if err != nil {
		return err
	}

	publisher, err := createPublisher(cfg)
	if err != nil {
		return err
	}
	recorder := events.NewRecorder(publisher, cfg.Events.Driver, registry)
	defer func() {
		if err := recorder.Close(); err != nil {
			appLogger.Warn("close event publisher failed", slog.Any("error", err))
		}
	}()

	server := api.NewServer(cfg.Server.Address, runtime, templates,
		api.WithRuntimeInfo(cfg.Agent.Runtime, cfg.LLM.Model),
		api.WithPublicURL(cfg.Server.PublicURL),
		api.WithMCPHandler(mcpserver.New(gateway, nil)),
		api.WithMetrics(registry),
		api.WithRecorder(recorder),
		api.WithAlerter(alerter),
		api.WithTimeouts(cfg.Server.ReadHeaderTimeout(), cfg.Server.ShutdownTimeout()),
	)

	appLogger.Info("starting aibankd",
		slog.String("runtime", cfg.Agent.Runtime),
		slog.Bool("maps_enabled", cfg.Maps.Enabled()),
		slog.String("events", cfg.Events.Driver))

	if err := server.Start(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func createGeocoder(ctx context.Context, cfg *config.Config, registry *metrics.Registry, alerter alerting.Dispatcher) (*geocode.Client, func(), error) {
	noop := func() {}
	opts := []geocode.Option{geocode.WithObserver(registry), geocode.WithAlerter(alerter)}

	if cfg.Maps.Enabled() {
		switch cfg.Maps.Cache.Driver {
		case "memory":
			cache := geocode.NewMemoryCacheWithConfig(geocode.MemoryCacheConfig{
				MaxEntries: cfg.Maps.Cache.MaxEntries,
			})
			opts = append(opts, geocode.WithCache(cache, cfg.Maps.Cache.TTL()))
			noop = func() { _ = cache.Close() }
		case "redis":
			cache, err := geocode.NewRedisCache(ctx, geocode.RedisCacheConfig{
				Address:  cfg.Maps.Cache.Redis.Address,
				Password: cfg.Maps.Cache.Redis.Password,
				DB:       cfg.Maps.Cache.Redis.DB,
				Prefix:   cfg.Maps.Cache.Redis.Prefix,
			})
			if err != nil {
				return nil, noop, err
			}
			opts = append(opts, geocode.WithCache(cache, cfg.Maps.Cache.TTL()))
			noop = func() { _ = cache.Close() }
		}
	}

	client := geocode.NewClient(geocode.Config{
		Endpoint: cfg.Maps.ServerURL,
		ToolName: cfg.Maps.ToolName,
		Timeout:  cfg.Maps.Timeout(),
		Breaker: geocode.BreakerSettings{
			MaxFailures:    cfg.Maps.Breaker.MaxFailures,
			OpenTimeout:    time.Duration(cfg.Maps.Breaker.OpenSeconds) * time.Second,
			HalfOpenProbes: cfg.Maps.Breaker.HalfOpenProbes,
			Interval:       time.Duration(cfg.Maps.Breaker.IntervalSeconds) * time.Second,
		},
	}, opts...)
	return client, noop, nil
}

func createAlerter(cfg *config.Config) *alerting.FanoutDispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{Logger: logger.Named("alerts")}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:    cfg.Alerting.WebhookURL,
			Client: &http.Client{Timeout: cfg.Alerting.Timeout()},
		})
	}
	return alerting.NewFanout(notifiers...)
}

func createRuntime(cfg *config.Config, gw banking.Gateway, geocoder geocode.Geocoder, registry *metrics.Registry) (agent.Runtime, error) {
	switch cfg.Agent.Runtime {
	case config.RuntimeLLM:
		client, err := createLLMClient(cfg)
		if err != nil {
			return nil, err
		}
		return agent.NewLLMRuntime(client, gw,
			agent.WithMaxToolRounds(cfg.LLM.MaxToolRounds),
			agent.WithLLMTimeout(cfg.LLM.Timeout()),
		), nil
	default:
		return agent.New(gw,
			agent.WithGeocoder(geocoder),
			agent.WithMapEndpoint(cfg.Maps.ServerURL),
			agent.WithObserver(registry),
		), nil
	}
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "openai", "":
		return openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout(),
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}
}

func createPublisher(cfg *config.Config) (events.Publisher, error) {
	switch cfg.Events.Driver {
	case events.DriverRabbitMQ:
		return events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:     cfg.Events.RabbitMQ.URL,
			Queue:   cfg.Events.RabbitMQ.Queue,
			Durable: cfg.Events.RabbitMQ.Durable,
		})
	case events.DriverKafka:
		return events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Events.Kafka.Brokers,
			Topic:   cfg.Events.Kafka.Topic,
		})
	case events.DriverNone:
		return events.Nop{}, nil
	default:
		return events.NewLogPublisher(nil), nil
	}
}
