package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/or7nge/sheet-music-transcriber/internal/config"
	"github.com/or7nge/sheet-music-transcriber/internal/daemon"
	"github.com/or7nge/sheet-music-transcriber/internal/enhance"
	"github.com/or7nge/sheet-music-transcriber/internal/jobs"
	"github.com/or7nge/sheet-music-transcriber/internal/logging"
	"github.com/or7nge/sheet-music-transcriber/internal/pipeline"
	"github.com/or7nge/sheet-music-transcriber/internal/services/homr"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		LogDir: cfg.Paths.LogDir,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		log.Fatalf("open job store: %v", err)
	}

	engine := homr.New(homr.Config{
		Dir:                 cfg.Engine.Dir,
		PoetryCommand:       cfg.Engine.PoetryCommand,
		Timeout:             cfg.EngineTimeout(),
		AvailabilityTimeout: cfg.EngineAvailabilityTimeout(),
		Enhance:             enhanceOptions(cfg),
	}, logger)

	runner := pipeline.New(engine, logger)
	manager := jobs.NewManager(cfg, store, runner, logger)

	d, err := daemon.New(cfg, store, manager, engine, logger)
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := manager.EvictStale(ctx); err != nil {
					logger.Warn("stale job sweep failed", logging.Error(err))
				}
			}
		}
	}()

	<-ctx.Done()
	d.Stop()
}

func enhanceOptions(cfg *config.Config) enhance.Options {
	opts := enhance.DefaultOptions()
	if cfg.Enhancement.TargetSize > 0 {
		opts.TargetSize = cfg.Enhancement.TargetSize
	}
	if cfg.Enhancement.MaxScale > 0 {
		opts.MaxScale = cfg.Enhancement.MaxScale
	}
	if cfg.Enhancement.ClipLimit > 0 {
		opts.ClipLimit = cfg.Enhancement.ClipLimit
	}
	if cfg.Enhancement.TileGrid > 0 {
		opts.TileGrid = cfg.Enhancement.TileGrid
	}
	if cfg.Enhancement.BlockSize > 0 {
		opts.BlockSize = cfg.Enhancement.BlockSize
	}
	if cfg.Enhancement.Offset != 0 {
		opts.Offset = cfg.Enhancement.Offset
	}
	return opts
}
