// Command devapi serves an in-memory loyalty backend for local development
// and manual testing of the client. Metrics are exposed on /metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/fakeapi"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
	"github.com/caarlos0/env/v11"
)

type config struct {
	Port       int           `env:"PORT"               envDefault:"8080"`
	Secret     string        `env:"DEVAPI_SECRET"`
	AccessTTL  time.Duration `env:"DEVAPI_ACCESS_TTL"  envDefault:"15m"`
	RefreshTTL time.Duration `env:"DEVAPI_REFRESH_TTL" envDefault:"168h"`
	Username   string        `env:"DEVAPI_USER"        envDefault:"demo"`
	Password   string        `env:"DEVAPI_PASSWORD"    envDefault:"demo"`
	Env        string        `env:"ENV"                envDefault:"dev"`
	LogLevel   string        `env:"LOG_LEVEL"          envDefault:"info"`
	LogFormat  string        `env:"LOG_FORMAT"         envDefault:"json"`

	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("devapi error: %v", err)
	}
}

func run(cfg config) error {
	logger := slogx.New(slogx.Config{
		Service: "loyalty-devapi",
		Version: "dev",
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	api := fakeapi.New(fakeapi.Options{
		Secret:     []byte(cfg.Secret),
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Logger:     logger,
	})
	api.AddUser(cfg.Password, domain.UserProfile{
		FirstName: "Demo",
		LastName:  "User",
		UserName:  cfg.Username,
		UserCode:  1001,
		Email:     cfg.Username + "@example.com",
		Roles:     []string{"customer"},
	})
	api.SeedRewards(1,
		domain.Reward{ID: "1", Title: "Free coffee", Description: "Any size, any blend"},
		domain.Reward{ID: "2", Title: "10% off", Description: "One order at this outlet"},
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", api.MetricsHandler())
	mux.Handle("/", api)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}

	logger.Info("devapi starting", "port", cfg.Port, "user", cfg.Username)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	logger.Info("devapi stopped")
	return nil
}
