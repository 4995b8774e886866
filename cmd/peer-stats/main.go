package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/route-beacon/peer-stats/internal/config"
	phttp "github.com/route-beacon/peer-stats/internal/http"
	"github.com/route-beacon/peer-stats/internal/metrics"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// appEnv carries what Before resolves for every command.
type appEnv struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newApp() *cli.App {
	e := &appEnv{}
	return &cli.App{
		Name:  "peer-stats",
		Usage: "aggregate BGP RIB dumps into peer, prefix-origin and AS-relationship datasets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to configuration YAML file",
				EnvVars: []string{"PEER_STATS_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log level (debug, info, warn, error)",
			},
		},
		Before: e.before,
		After: func(*cli.Context) error {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			e.bootstrapCommand(),
			e.singleFileCommand(),
			e.indexPfx2ASCommand(),
			e.indexAS2RelCommand(),
			e.indexPeerStatsCommand(),
			e.migrateCommand(),
		},
	}
}

func (e *appEnv) before(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Service.LogLevel = lvl
	}
	logger, err := initLogger(cfg.Service.LogLevel)
	if err != nil {
		return err
	}
	metrics.Register()
	e.cfg, e.logger = cfg, logger
	return nil
}

// signalContext cancels the command's context on SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
}

func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	return logger, nil
}

// startHTTP serves health and metrics while a command runs. It returns a
// stop function, which is a no-op when service.metrics_listen is empty.
func (e *appEnv) startHTTP(db, kafka phttp.Pinger, batch phttp.BatchStatus) (func(), error) {
	if e.cfg.Service.MetricsListen == "" {
		return func() {}, nil
	}
	srv := phttp.NewServer(e.cfg.Service.MetricsListen, db, kafka, batch, e.logger.Named("http"))
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("starting HTTP server: %w", err)
	}
	return func() {
		timeout := time.Duration(e.cfg.Service.ShutdownTimeoutSeconds) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			e.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}, nil
}

var dsnPassword = regexp.MustCompile(`password\s*=\s*\S+`)

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		// keyword=value format: redact the password=... portion
		return dsnPassword.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
