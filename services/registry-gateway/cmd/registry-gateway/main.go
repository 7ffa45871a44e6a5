package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"omatrust/attestation"
	"omatrust/observability/logging"
	telemetry "omatrust/observability/otel"
	registrygateway "omatrust/services/registry-gateway"
	"omatrust/verifier"
	"omatrust/verifier/pkh"

	"golang.org/x/time/rate"
)

func main() {
	env := strings.TrimSpace(os.Getenv("OMATRUST_ENV"))
	logger := logging.Setup("registry-gateway", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "registry-gateway",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	if err := run(logger); err != nil {
		log.Fatalf("registry gateway failed: %v", err)
	}
}

func run(logger *slog.Logger) error {
	configPath := strings.TrimSpace(os.Getenv("REGISTRY_GATEWAY_CONFIG"))
	cfg, err := registrygateway.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if listen := strings.TrimSpace(os.Getenv("REGISTRY_GATEWAY_LISTEN")); listen != "" {
		cfg.ListenAddress = listen
	}
	if dbPath := strings.TrimSpace(os.Getenv("REGISTRY_GATEWAY_DB")); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if schema := strings.TrimSpace(os.Getenv("REGISTRY_REVIEW_SCHEMA")); schema != "" {
		cfg.ReviewSchemaID = schema
	}
	if cfg.ReviewSchemaID == "" {
		return errors.New("ReviewSchemaID is required (config or REGISTRY_REVIEW_SCHEMA)")
	}
	if cfg.RPCGateway == "" && len(cfg.RPCOverrides) == 0 {
		return errors.New("RPCGateway or RPCOverrides is required")
	}

	overrides, err := cfg.EndpointOverrides()
	if err != nil {
		return err
	}
	pool := pkh.NewClientPool(pkh.StaticEndpoints{Overrides: overrides, Gateway: cfg.RPCGateway})
	defer pool.Close()

	didVerifier, err := verifier.New(verifier.Config{
		DNSServer: cfg.DNSServer,
		Clients:   pool,
	})
	if err != nil {
		return err
	}

	store, err := attestation.NewStore(cfg.DatabasePath, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	server, err := registrygateway.NewServer(
		didVerifier,
		store,
		attestation.NewEngine(cfg.ReviewSchemaID),
		rate.Limit(cfg.RateLimitPerSecond),
		cfg.RateLimitBurst,
		nil,
	)
	if err != nil {
		return err
	}

	handler := otelhttp.NewHandler(server.Router(), "registry-gateway")
	srv := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("registry-gateway listening", "addr", cfg.ListenAddress)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
