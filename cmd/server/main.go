// Command server runs the unillm chat gateway.
//
// Configuration is read from a config file (flag -config, UNILLM_CONFIG env,
// or the default discovery locations) layered with UNILLM_* environment
// overrides. When no config file exists, a placeholder registry document is
// written and the server exits so credentials can be filled in.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unillm/unillm/pkg/auth"
	"github.com/unillm/unillm/pkg/auth/apikey"
	authjwt "github.com/unillm/unillm/pkg/auth/jwt"
	"github.com/unillm/unillm/pkg/auth/noop"
	"github.com/unillm/unillm/pkg/config"
	"github.com/unillm/unillm/pkg/debug"
	"github.com/unillm/unillm/pkg/observability"
	"github.com/unillm/unillm/pkg/registry"
	"github.com/unillm/unillm/pkg/storage"
	"github.com/unillm/unillm/pkg/storage/memory"
	"github.com/unillm/unillm/pkg/storage/postgres"
	"github.com/unillm/unillm/pkg/transport"
)

const defaultConfigPath = "config.json"

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (YAML or JSON)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// First run: seed a placeholder registry document and exit so the
	// operator can fill in real credentials.
	if len(cfg.Registry.Models) == 0 {
		if err := config.WriteExample(defaultConfigPath); err != nil {
			return fmt.Errorf("writing example config: %w", err)
		}
		return fmt.Errorf("no models configured; wrote example config to %s, edit it and restart", defaultConfigPath)
	}

	debug.Init(cfg.Debug.Categories, cfg.Debug.Level)
	logger := slog.Default()

	reg := registry.New(cfg.Registry)
	dispatcher, err := registry.NewDispatcher(reg, cfg.Registry.ProxyURL)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder, store, err := buildStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	handler := transport.NewHandler(dispatcher, recorder, logger)

	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	if cfg.Observability.Metrics.Enabled {
		mux.Handle("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	chain, err := buildAuthChain(cfg.Auth)
	if err != nil {
		return err
	}
	var limiter auth.RateLimiter
	if cfg.Auth.RateLimit.DefaultRPM > 0 || len(cfg.Auth.RateLimit.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(cfg.Auth.RateLimit.Tiers))
		for name, rpm := range cfg.Auth.RateLimit.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewInProcessLimiter(tiers, cfg.Auth.RateLimit.DefaultRPM)
	}

	root := transport.Chain(
		transport.Recovery(logger),
		transport.RequestID(),
		transport.Logging(logger),
		transport.CORS(),
		observability.MetricsMiddleware,
		auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints),
	)(mux)

	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     root,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout stays zero: streaming responses have no fixed deadline.
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", cfg.Server.Addr,
			"models", len(cfg.Registry.Models),
			"auth", cfg.Auth.Type,
			"storage", cfg.Storage.Type,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildStorage creates the usage store and its recorder. A nil recorder
// disables usage accounting.
func buildStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (transport.UsageRecorder, storage.Store, error) {
	switch cfg.Type {
	case "", "none":
		logger.Info("usage accounting disabled")
		return nil, nil, nil
	case "memory":
		store := memory.New(cfg.MaxRecords)
		logger.Info("usage accounting enabled", "type", "memory", "max_records", cfg.MaxRecords)
		return storage.NewRecorder(store, logger), store, nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating postgres store: %w", err)
		}
		logger.Info("usage accounting enabled", "type", "postgres")
		return storage.NewRecorder(store, logger), store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// buildAuthChain assembles the authenticator chain from configuration.
func buildAuthChain(cfg config.AuthConfig) (*auth.Chain, error) {
	switch cfg.Type {
	case "", "none":
		return &auth.Chain{
			Authenticators:  []auth.Authenticator{&noop.Authenticator{}},
			DefaultDecision: auth.Yes,
		}, nil
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			tier := k.ServiceTier
			if tier == "" {
				tier = "default"
			}
			entries = append(entries, apikey.RawKeyEntry{
				Key:      k.Key,
				Identity: auth.Identity{Subject: k.Subject, ServiceTier: tier},
			})
		}
		return &auth.Chain{
			Authenticators:  []auth.Authenticator{apikey.New(entries)},
			DefaultDecision: auth.No,
		}, nil
	case "jwt":
		return &auth.Chain{
			Authenticators: []auth.Authenticator{authjwt.New(authjwt.Config{
				Secret:   cfg.JWT.Secret,
				Issuer:   cfg.JWT.Issuer,
				Audience: cfg.JWT.Audience,
			})},
			DefaultDecision: auth.No,
		}, nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}
}
