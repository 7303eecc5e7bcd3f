package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/eugenenazirov/streamfx/internal/api"
	"github.com/eugenenazirov/streamfx/internal/config"
	"github.com/eugenenazirov/streamfx/internal/configuration"
	"github.com/eugenenazirov/streamfx/internal/settings"
	"github.com/eugenenazirov/streamfx/internal/version"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	cfg           config.Config
	configuration *configuration.Configuration
	handler       *api.Handler
	router        http.Handler
	logger        *zap.Logger
	server        *http.Server

	stopWatch context.CancelFunc
	watchDone <-chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// InitConfiguration initializes the process-wide plugin configuration from
// cfg and returns it. It logs when the stored settings were written by a
// different build.
func InitConfiguration(cfg config.Config, logger *zap.Logger) (*configuration.Configuration, error) {
	err := configuration.Initialize(cfg.SettingsPath,
		configuration.WithLogger(logger),
		configuration.WithBackupExtension(cfg.BackupExtension),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize configuration: %w", err)
	}

	conf, err := configuration.Instance()
	if err != nil {
		return nil, err
	}

	if conf.IsDifferentVersion() {
		logger.Info("settings written by a different version",
			zap.String("stored", version.Format(conf.Version())),
			zap.String("current", version.Format(version.Current())),
			zap.Bool("compatible", conf.IsCompatibleVersion()),
		)
	}
	return conf, nil
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	conf, err := InitConfiguration(cfg, logger)
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(conf)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	return &App{
		cfg:           cfg,
		configuration: conf,
		handler:       handler,
		router:        apiRouter,
		logger:        logger,
		server:        NewServer(cfg, BuildRootHandler(apiRouter)),
	}, nil
}

// BuildRootHandler mounts the API under /api/ and answers everything else
// with 404.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", http.NotFoundHandler())
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the settings watcher when enabled and the HTTP server in a
// goroutine.
func (a *App) Start() error {
	if a.cfg.WatchSettings {
		ctx, cancel := context.WithCancel(context.Background())
		done, err := a.configuration.Watch(ctx, configuration.DefaultWatchDebounce, func(*settings.Data) {
			a.handler.MarkUpdated()
		})
		if err != nil {
			cancel()
			return fmt.Errorf("start settings watcher: %w", err)
		}
		a.stopWatch = cancel
		a.watchDone = done
	}

	go func() {
		a.logger.Info("server listening",
			zap.String("addr", a.server.Addr),
			zap.String("settings", a.configuration.Path()),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Configuration returns the plugin configuration served by the app.
func (a *App) Configuration() *configuration.Configuration {
	return a.configuration
}

// Close stops the watcher, waits for it to exit and finalizes the plugin
// configuration, which persists pending changes. It is safe to call more
// than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.stopWatch != nil {
			a.stopWatch()
			<-a.watchDone
		}
		if err := configuration.Finalize(); err != nil {
			a.closeErr = fmt.Errorf("finalize configuration: %w", err)
		}
	})
	return a.closeErr
}
