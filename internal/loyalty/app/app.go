// Package app assembles the client: storage, token store, API client,
// services, session store and route guard.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/apiclient"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/guard"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/service"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/session"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/store"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/store/drivers/sqlite"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/tokens"
	"github.com/aussiebroadwan/loyalty/pkg/cryptox"
	"github.com/aussiebroadwan/loyalty/pkg/httpx"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application holds the wired client. Fields are exported for the commands
// that drive it.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	kv     store.KV
	writer *store.Writer

	DeviceID string
	Registry *prometheus.Registry

	Tokens *tokens.Store
	Client *apiclient.Client

	Auth          *service.AuthService
	Points        *service.PointsService
	Rewards       *service.RewardsService
	Notifications *service.NotificationService
	Transactions  *service.TransactionService

	Session *session.Store
	Nav     *guard.History
	Guard   *guard.Guard
}

// New opens storage and restores the persisted session. The returned
// application is hydrated; callers validate it through Guard.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "loyalty",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  cfg.LogOutput,
		}),
		Registry: prometheus.NewRegistry(),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initKV(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.writer = store.NewWriter(app.kv, app.logger, cfg.WriteTimeout)
	app.writer.Start()

	app.Tokens = tokens.New(app.kv, app.writer, app.logger)
	app.Tokens.Initialize(ctx)

	app.initServices()

	if _, err := app.Session.Load(ctx); err != nil {
		_ = app.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	app.Session.MarkHydrated()

	app.Nav = guard.NewHistory(guard.DefaultRoutes.Login)
	app.Guard = guard.New(app.Session, app.Nav, guard.Options{Logger: app.logger})

	return app, nil
}

func (app *Application) Logger() *slog.Logger { return app.logger }

// Shutdown flushes pending writes and closes storage.
func (app *Application) Shutdown(ctx context.Context) error {
	var errs []error

	if err := app.writer.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	app.writer.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// initDatabase opens the sqlite file and applies migrations.
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", app.cfg.DataFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Debug("database migrations applied", "file", app.cfg.DataFile)
	return nil
}

// initKV loads or creates the device identity and, with a secret configured,
// layers sealing over the database.
func (app *Application) initKV(ctx context.Context) error {
	deviceID, err := app.ensure(ctx, store.KeyDeviceID, func() []byte {
		return []byte(uuid.NewString())
	})
	if err != nil {
		return fmt.Errorf("failed to load device id: %w", err)
	}
	app.DeviceID = string(deviceID)

	app.kv = app.db
	if app.cfg.Secret == "" {
		app.logger.Warn("LOYALTY_SECRET not set; tokens are stored unsealed")
		return nil
	}

	salt, err := app.ensure(ctx, store.KeySalt, func() []byte {
		id := uuid.New()
		return id[:]
	})
	if err != nil {
		return fmt.Errorf("failed to load seal salt: %w", err)
	}

	sealer, err := cryptox.NewSealer([]byte(app.cfg.Secret), salt)
	if err != nil {
		return err
	}
	app.kv = store.NewSealed(app.db, sealer)
	return nil
}

// ensure returns the value under key, storing gen's output on first use.
func (app *Application) ensure(ctx context.Context, key string, gen func() []byte) ([]byte, error) {
	v, err := app.db.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	v = gen()
	if err := app.db.Set(ctx, key, v); err != nil {
		return nil, err
	}
	return v, nil
}

// initServices wires the API client and everything built on it.
func (app *Application) initServices() {
	limit := httpx.RefreshLimit
	if app.cfg.RefreshPerMinute > 0 {
		limit = httpx.RateLimitConfig{
			RequestsPerWindow: app.cfg.RefreshPerMinute,
			Window:            time.Minute,
			Burst:             app.cfg.RefreshBurst,
		}
	}

	app.Client = apiclient.New(apiclient.Options{
		BaseURL:      app.cfg.APIURL,
		Tokens:       app.Tokens,
		Logger:       app.logger,
		Registerer:   app.Registry,
		RefreshLimit: limit,
		DeviceID:     app.DeviceID,
		UserAgent:    "loyalty/" + BuildVersion,
		HTTPClient:   httpClient(app.cfg.HTTPTimeout),

		// The session is built below; these only run once requests flow.
		OnRefreshed:    func(pair domain.TokenPair) { app.Session.AdoptTokens(pair) },
		OnSessionEnded: func(err error) { app.Session.EndSession(err) },
	})

	app.Auth = &service.AuthService{API: app.Client}
	app.Points = &service.PointsService{API: app.Client}
	app.Rewards = &service.RewardsService{API: app.Client}
	app.Notifications = &service.NotificationService{API: app.Client}
	app.Transactions = &service.TransactionService{API: app.Client}

	app.Session = session.New(app.Auth, app.Tokens, app.kv, app.writer, app.logger)
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		return nil
	}
	return &http.Client{Timeout: timeout}
}
