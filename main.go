package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/soocke/pixel-censor-go/app"
	"github.com/soocke/pixel-censor-go/config"
	"github.com/soocke/pixel-censor-go/debug"
	"github.com/soocke/pixel-censor-go/ui/view"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to a JSON or YAML config file")
	debugFlag := flag.Bool("debug", false, "enable debug logging and runtime metrics")
	headless := flag.Bool("headless", false, "start censoring immediately without the control panel")
	captureTest := flag.String("capture-test", "", "save one captured frame to this PNG path and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	level := slog.LevelInfo
	if *debugFlag || cfg.Debug {
		cfg.Debug = true
		level = slog.LevelDebug
	}
	logger := NewLogger(level)
	if err != nil {
		logger.Warn("config load failed; using defaults", "path", *cfgPath, "error", err)
	}

	if cfg.Debug {
		debug.StartGoroutineLogger(10*time.Second, logger)
		debug.StartMemLogger(10*time.Second, logger)
	}

	c, err := app.BuildContainer(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	os.Exit(run(c, cfg, *cfgPath, *headless, *captureTest, logger))
}

func run(c *app.AppContainer, cfg *config.Config, cfgPath string, headless bool, captureTest string, logger *slog.Logger) int {
	defer c.Close()
	if captureTest != "" {
		if err := c.Controller.CaptureTest(captureTest); err != nil {
			logger.Error("capture test failed", "error", err)
			return 1
		}
		return 0
	}
	if headless || !cfg.ControlPanel {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := c.RunHeadless(ctx); err != nil {
			logger.Error("pipeline failed", "error", err)
			return 1
		}
		return 0
	}
	save := func() error { return c.SaveSettings(cfgPath) }
	view.NewControlPanel(c.Controller, filepath.Dir(cfgPath), save, logger).Run()
	return 0
}
