package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/soocke/pixel-cue/app"
	"github.com/soocke/pixel-cue/config"
)

func main() {
	cfgPath := flag.String("config", "pixel-cue.json", "path to the JSON config file, watched for changes")
	markerPath := flag.String("marker", "", "marker image overriding marker_path from the config")
	debugFlag := flag.Bool("debug", false, "verbose logging and runtime memory loggers")
	flag.Parse()

	lv := new(slog.LevelVar)
	logger := NewLogger(lv)

	watcher, err := config.NewWatcher(*cfgPath, logger)
	if err != nil {
		logger.Warn("config unreadable, using defaults", "path", *cfgPath, "error", err)
	}
	if *markerPath != "" || *debugFlag {
		watcher.Override(func(c *config.Config) {
			if *markerPath != "" {
				c.MarkerPath = *markerPath
			}
			if *debugFlag {
				c.Debug = true
			}
		})
	}
	lv.Set(levelFor(watcher.Current().Debug))
	watcher.OnChange(func(c *config.Config) { lv.Set(levelFor(c.Debug || *debugFlag)) })

	c, err := app.BuildContainer(watcher, logger, app.Options{})
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := c.Run(ctx); err != nil {
		logger.Error("engine failed", "error", err)
		os.Exit(1)
	}
}
