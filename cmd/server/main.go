package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	connectorgin "github.com/pilab-dev/googleconnector/api/gin"
	"github.com/pilab-dev/googleconnector/config"
	"github.com/pilab-dev/googleconnector/internal/federation"
	"github.com/pilab-dev/googleconnector/internal/metrics"
	"github.com/pilab-dev/googleconnector/internal/oauthsession"
	"github.com/pilab-dev/googleconnector/internal/server"
	"github.com/pilab-dev/googleconnector/internal/stores"
	"github.com/pilab-dev/googleconnector/log"
	"github.com/pilab-dev/googleconnector/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	if err := newRootCmd(run).ExecuteContext(context.Background()); err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("googleconnector server failed")
	}
}

// newRootCmd builds the server command; runFn receives the --config path.
func newRootCmd(runFn func(ctx context.Context, configPath string) error) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "googleconnector",
		Short:        "googleconnector serves the OAuth2 client endpoint",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFn(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "config file (default searches /etc/googleconnector, $HOME/.googleconnector and . for connector.yaml)")

	return root
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)

	appLogger.Info(ctx, "Starting googleconnector server...", map[string]interface{}{
		"http_addr":       cfg.HTTPAddr,
		"storage_backend": cfg.Storage.Backend,
		"log_level":       logLevel.String(),
		"tracing":         cfg.TracingEnabled,
	})

	var tracerProvider *sdktrace.TracerProvider
	if cfg.TracingEnabled {
		tracerProvider, err = tracing.InitTracerProvider(cfg.OtelServiceName, nil)
		if err != nil {
			appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err)
		}
	}

	backends, err := stores.Open(ctx, cfg.Storage)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to open storage backend", err, map[string]interface{}{"backend": cfg.Storage.Backend})
	}

	bridge := oauthsession.NewBridge(backends.Sessions, oauthsession.WithTTL(cfg.Session.TTL))
	service, err := federation.NewServiceFromConfigs(cfg.ProviderConfigs(), cfg.CallbackBaseURL, bridge, backends.Credentials, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Invalid provider configuration", err)
	}
	appLogger.Info(ctx, "Providers configured", map[string]interface{}{"providers": service.Providers()})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.InitCustomMetrics(registry)

	gin.SetMode(gin.ReleaseMode)
	connectorAPI := connectorgin.NewConnectorAPI(service, connectorgin.CookieConfig{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.CookieSecure,
		MaxAge: cfg.Session.TTL,
	}, appLogger)
	httpServer := server.NewHTTPServer(cfg, server.NewRouter(cfg, appLogger, connectorAPI, registry))

	go func() {
		appLogger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": cfg.HTTPAddr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(ctx, "Failed to start HTTP server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(ctx, "Shutting down server...", map[string]interface{}{"signal": receivedSignal.String()})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err)
		}
	}
	if err := backends.Close(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "Storage shutdown error", err)
	}

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
	return nil
}
