package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	alertsapp "lab-monitor-bridge/internal/alerts/application"
	"lab-monitor-bridge/internal/alerts/notify"
	"lab-monitor-bridge/internal/auth"
	"lab-monitor-bridge/internal/bridge"
	statushttp "lab-monitor-bridge/internal/bridge/interfaces/http"
	"lab-monitor-bridge/internal/broadcast"
	broadcasthttp "lab-monitor-bridge/internal/broadcast/interfaces/http"
	classificationapp "lab-monitor-bridge/internal/classification/application"
	"lab-monitor-bridge/internal/classification/infrastructure/remote"
	"lab-monitor-bridge/internal/config"
	endpointsapp "lab-monitor-bridge/internal/endpoints/application"
	endpointshttp "lab-monitor-bridge/internal/endpoints/interfaces/http"
	"lab-monitor-bridge/internal/observability/logging"
	"lab-monitor-bridge/internal/observability/metrics"
	telemetry "lab-monitor-bridge/internal/telemetry/domain"
	"lab-monitor-bridge/internal/telemetry/interfaces/mqtt"
)

func main() {
	flags := pflag.NewFlagSet("lab-monitor-bridge", pflag.ExitOnError)
	configPath := flags.String("config", os.Getenv("BRIDGE_CONFIG"), "path to the YAML config file")
	httpAddr := flags.String("http-addr", "", "HTTP listen address (overrides config)")
	logLevel := flags.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bridge stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("bridge stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	metrics.Init()

	store, closeStore, err := openStore(ctx, cfg.Registry, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	registry, err := endpointsapp.Open(ctx, store, logger.With("component", "registry"))
	if err != nil {
		return err
	}

	provider, err := buildProvider(ctx, cfg.Push, logger)
	if err != nil {
		return err
	}
	template, err := notify.NewTemplate(cfg.Push.TitleTemplate, cfg.Push.BodyTemplate)
	if err != nil {
		return fmt.Errorf("push template: %w", err)
	}
	dispatcher, err := alertsapp.NewDispatcher(registry, provider, template,
		alertsapp.WithTierTable(cfg.Push.Tiers),
		alertsapp.WithQueueSize(cfg.Push.QueueSize),
		alertsapp.WithSendTimeout(cfg.Push.SendTimeout),
		alertsapp.WithLogger(logger.With("component", "alerts")),
	)
	if err != nil {
		return err
	}

	gateway, err := buildGateway(cfg.Classifier, logger.With("component", "classifier"))
	if err != nil {
		return err
	}

	hub := broadcast.NewHub(
		broadcast.WithSessionBuffer(cfg.Pipeline.SessionBuffer),
		broadcast.WithLogger(logger.With("component", "viewers")),
	)

	transport, err := mqtt.NewClient(mqtt.Config{
		Broker:            cfg.MQTT.Broker,
		Port:              cfg.MQTT.Port,
		ClientIDPrefix:    cfg.MQTT.ClientIDPrefix,
		Username:          cfg.MQTT.Username,
		Password:          cfg.MQTT.Password,
		QoS:               byte(cfg.MQTT.QoS),
		ReconnectInterval: cfg.MQTT.ReconnectInterval,
		PublishTimeout:    cfg.MQTT.PublishTimeout,
	}, logger.With("component", "mqtt"))
	if err != nil {
		return err
	}

	orchestrator, err := bridge.NewOrchestrator(gateway, hub, dispatcher, transport,
		bridge.WithTopics(bridge.Topics{Prefix: cfg.MQTT.TopicPrefix, Processed: cfg.MQTT.ProcessedTopic}),
		bridge.WithQueueSize(cfg.Pipeline.QueueSize),
		bridge.WithLogger(logger.With("component", "pipeline")),
	)
	if err != nil {
		return err
	}
	if err := transport.Subscribe(cfg.MQTT.RawTopic, func(reading telemetry.Reading) {
		orchestrator.Enqueue(reading)
	}); err != nil {
		return err
	}

	handler, err := buildHTTP(cfg, logger, httpDeps{
		registry:   registry,
		hub:        hub,
		dispatcher: dispatcher,
		gateway:    gateway,
		transport:  transport,
	})
	if err != nil {
		return err
	}
	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", cfg.HTTP.Addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error { return transport.Run(gctx) })
	g.Go(func() error { return orchestrator.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error {
		logger.Info("http listening", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
		return nil
	})

	logger.Info("bridge started",
		"broker", cfg.MQTT.Broker,
		"raw_topic", cfg.MQTT.RawTopic,
		"classifier", cfg.Classifier.URL,
		"registry", cfg.Registry.Backend)
	return g.Wait()
}

func buildGateway(cfg config.ClassifierConfig, logger *slog.Logger) (*classificationapp.Gateway, error) {
	opts := []classificationapp.GatewayOption{
		classificationapp.WithTimeout(cfg.Timeout),
		classificationapp.WithLogger(logger),
	}
	if cfg.URL == "" {
		logger.Warn("no classifier configured, using threshold fallback only")
		return classificationapp.NewGateway(nil, opts...), nil
	}
	client, err := remote.NewClient(cfg.URL)
	if err != nil {
		return nil, err
	}
	opts = append(opts, classificationapp.WithHealthProbe(func(ctx context.Context) (string, error) {
		status, err := client.Health(ctx)
		return status.Status, err
	}))
	return classificationapp.NewGateway(client, opts...), nil
}

type httpDeps struct {
	registry   *endpointsapp.Registry
	hub        *broadcast.Hub
	dispatcher *alertsapp.Dispatcher
	gateway    *classificationapp.Gateway
	transport  *mqtt.Client
}

func buildHTTP(cfg config.Config, logger *slog.Logger, deps httpDeps) (http.Handler, error) {
	endpointsHandler, err := endpointshttp.NewHandler(deps.registry)
	if err != nil {
		return nil, err
	}
	wsHandler, err := broadcasthttp.NewWebSocketHandler(deps.hub, cfg.HTTP.AllowedOrigins, logger.With("component", "websocket"))
	if err != nil {
		return nil, err
	}
	status := statushttp.NewHandler(statushttp.Sources{
		Transport:  deps.transport,
		Classifier: deps.gateway,
		Viewers:    deps.hub.Count,
		Labels:     deps.dispatcher.Snapshot,
		Endpoints:  deps.registry.List,
	})

	mux := http.NewServeMux()
	mux.Handle(endpointshttp.PathRegister, endpointsHandler)
	mux.Handle(endpointshttp.PathUnregister, endpointsHandler)
	mux.Handle(endpointshttp.PathList, endpointsHandler)
	mux.Handle("/ws", wsHandler)
	mux.Handle("/api/stream", broadcasthttp.NewStreamHandler(deps.hub))
	mux.HandleFunc("/api/status", status.Status)
	mux.HandleFunc("/healthz", status.Health)
	mux.Handle("/metrics", promhttp.Handler())

	var verifier *auth.Verifier
	if cfg.Auth.JWTSecret != "" {
		verifier, err = auth.NewVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			return nil, err
		}
	}
	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics", "/ws"}, []string{"/api/stream"})
	authMiddleware := auth.NewMiddleware(verifier, policy, logger.With("component", "auth"))

	return loggingMiddleware(authMiddleware.Wrap(mux), logger), nil
}
