package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/streamfx/internal/application"
	"github.com/eugenenazirov/streamfx/internal/config"
	"github.com/eugenenazirov/streamfx/internal/configuration"
	"github.com/eugenenazirov/streamfx/internal/logging"
	"github.com/eugenenazirov/streamfx/internal/version"
)

var signalNotify = signal.Notify

type cli struct {
	app *kingpin.Application

	configFile   *string
	settingsPath *string
	logLevel     *string

	serve          *kingpin.CmdClause
	port           *string
	watch          *bool
	watchSet       bool
	rateLimitRPS   *float64
	rateLimitBurst *int

	show *kingpin.CmdClause

	get    *kingpin.CmdClause
	getKey *string

	set      *kingpin.CmdClause
	setKey   *string
	setValue *string

	unset    *kingpin.CmdClause
	unsetKey *string

	version *kingpin.CmdClause
}

func newCLI() *cli {
	app := kingpin.New("streamfx", "StreamFX settings tool - inspects and edits the persisted plugin configuration")
	app.Version(version.Version)

	c := &cli{app: app}
	c.configFile = app.Flag("config", "Path to YAML configuration file of this tool").String()
	c.settingsPath = app.Flag("settings", "Path to the plugin settings file").String()
	c.logLevel = app.Flag("log-level", "Log level (debug, info, warn, error)").String()

	c.serve = app.Command("serve", "Expose the plugin settings over HTTP")
	c.port = c.serve.Flag("port", "HTTP port exposed by the service").String()
	c.watch = c.serve.Flag("watch", "Reload settings when the file changes on disk").IsSetByUser(&c.watchSet).Bool()
	c.rateLimitRPS = c.serve.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	c.rateLimitBurst = c.serve.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	c.show = app.Command("show", "Print all settings as YAML")

	c.get = app.Command("get", "Print a single setting")
	c.getKey = c.get.Arg("key", "Setting name").Required().String()

	c.set = app.Command("set", "Store a setting and save the file")
	c.setKey = c.set.Arg("key", "Setting name").Required().String()
	c.setValue = c.set.Arg("value", "Setting value, parsed as a YAML scalar").Required().String()

	c.unset = app.Command("unset", "Remove a setting and save the file")
	c.unsetKey = c.unset.Arg("key", "Setting name").Required().String()

	c.version = app.Command("version", "Compare the stored settings version with this build")

	return c
}

// overrides maps parsed flags onto config overrides. Only flags the user set
// take part.
func (c *cli) overrides() *config.CLIOverrides {
	overrides := &config.CLIOverrides{
		ConfigFile: *c.configFile,
	}

	if *c.settingsPath != "" {
		overrides.SettingsPath = c.settingsPath
	}

	if *c.logLevel != "" {
		overrides.LogLevel = c.logLevel
	}

	if *c.port != "" {
		overrides.Port = c.port
	}

	if c.watchSet {
		overrides.Watch = c.watch
	}

	if *c.rateLimitRPS >= 0 {
		overrides.RateLimitRPS = c.rateLimitRPS
	}

	if *c.rateLimitBurst >= 0 {
		overrides.RateLimitBurst = c.rateLimitBurst
	}

	return overrides
}

func main() {
	c := newCLI()
	command := kingpin.MustParse(c.app.Parse(os.Args[1:]))

	cfg, err := config.Load(c.overrides())
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	if command == c.serve.FullCommand() {
		serve(cfg, logger)
		return
	}

	if err := c.run(command, cfg, logger, os.Stdout); err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func serve(cfg config.Config, logger *zap.Logger) {
	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)

	if err := app.Close(); err != nil {
		logger.Error("failed to persist settings", zap.Error(err))
	}
}

// run executes the non-serving subcommands.
func (c *cli) run(command string, cfg config.Config, logger *zap.Logger, out io.Writer) error {
	switch command {
	case c.show.FullCommand():
		conf, err := openReadOnly(cfg, logger)
		if err != nil {
			return err
		}
		return conf.Get().Encode(out)

	case c.get.FullCommand():
		conf, err := openReadOnly(cfg, logger)
		if err != nil {
			return err
		}
		value, ok := conf.Get().Get(*c.getKey)
		if !ok {
			return fmt.Errorf("setting %q not found", *c.getKey)
		}
		return printYAML(out, value)

	case c.set.FullCommand():
		return withInstance(cfg, logger, func(conf *configuration.Configuration) error {
			return conf.Get().Set(*c.setKey, parseScalar(*c.setValue))
		})

	case c.unset.FullCommand():
		return withInstance(cfg, logger, func(conf *configuration.Configuration) error {
			if !conf.Get().Erase(*c.unsetKey) {
				return fmt.Errorf("setting %q not found", *c.unsetKey)
			}
			return nil
		})

	case c.version.FullCommand():
		conf, err := openReadOnly(cfg, logger)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "build:      %s (%s)\nstored:     %s\ndifferent:  %t\ncompatible: %t\n",
			version.Format(version.Current()),
			version.GitCommit,
			version.Format(conf.Version()),
			conf.IsDifferentVersion(),
			conf.IsCompatibleVersion(),
		)
		return err

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// openReadOnly loads the settings without taking part in the singleton
// lifecycle. Nothing is created or written back.
func openReadOnly(cfg config.Config, logger *zap.Logger) (*configuration.Configuration, error) {
	return configuration.New(cfg.SettingsPath,
		configuration.WithReadOnly(),
		configuration.WithLogger(logger),
		configuration.WithBackupExtension(cfg.BackupExtension),
	)
}

// withInstance runs fn against the process-wide configuration. On success
// the configuration is finalized, which persists it. On failure it is
// released and the file is left untouched.
func withInstance(cfg config.Config, logger *zap.Logger, fn func(*configuration.Configuration) error) error {
	conf, err := application.InitConfiguration(cfg, logger)
	if err != nil {
		return err
	}

	if err := fn(conf); err != nil {
		configuration.Release()
		return err
	}
	return configuration.Finalize()
}

func parseScalar(raw string) any {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
		return raw
	}
	switch value.(type) {
	case map[string]any, []any:
		return raw
	}
	return value
}

func printYAML(out io.Writer, value any) error {
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
