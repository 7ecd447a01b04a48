// Package server wires the identity components into a running process: it
// opens the database, applies migrations, builds the services and runs the
// HTTP and gRPC servers until the process is signalled.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server/config"
	"github.com/dmitrijs2005/sitekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/repomanager"

	gs "github.com/dmitrijs2005/sitekeeper/internal/server/grpc"
)

const replayPurgeInterval = 5 * time.Minute

type App struct {
	config     *config.Config
	logger     logging.Logger
	core       *Core
	httpServer *httpapi.Server
	grpcServer *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	rm, err := NewRepositoryManager(c)
	if err != nil {
		return nil, err
	}

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	core, err := NewCore(ctx, c, db, rm, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	app, err := newApp(c, core, logger)
	if err != nil {
		_ = core.Close()
		return nil, err
	}
	return app, nil
}

func newApp(c *config.Config, core *Core, logger logging.Logger) (*App, error) {
	h := httpapi.NewHandler(httpapi.Deps{
		Identity: core.Identity,
		Reset:    core.Reset,
		MFA:      core.MFA,
		Admin:    core.Admin,
		Gate:     core.Gate,
		Sessions: core.Sessions,
		Health:   core.DB,
	}, logger)

	router, err := httpapi.NewRouter(h, httpapi.RouterOptions{
		CredentialRate: c.LoginRate,
		Insecure:       c.CookieInsecure,
		Metrics:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("http router: %w", err)
	}

	return &App{
		config:     c,
		logger:     logger,
		core:       core,
		httpServer: httpapi.NewServer(c.HTTPAddr, router, logger),
		grpcServer: gs.NewGRPCServer(c.GRPCAddr, logger, core.Gate, core.Codec),
	}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// runServer runs one server; a failure stops the whole app.
func (app *App) runServer(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a signal arrives, then shuts both
// servers down and releases the core.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.runServer(ctx, cancelFunc, "http", app.httpServer.Run)
	}()
	go func() {
		defer wg.Done()
		app.runServer(ctx, cancelFunc, "grpc", app.grpcServer.Run)
	}()

	if app.core.storeGuard != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.core.storeGuard.RunPurger(ctx, replayPurgeInterval)
		}()
	}

	wg.Wait()

	app.logger.Info(context.Background(), "Stopping app...")
	return app.core.Close()
}
