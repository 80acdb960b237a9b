package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/or7nge/sheet-music-transcriber/internal/config"
	"github.com/or7nge/sheet-music-transcriber/internal/jobs"
	"github.com/or7nge/sheet-music-transcriber/internal/logging"
)

// EngineProbe reports whether the recognition engine is usable.
type EngineProbe interface {
	Available(ctx context.Context) bool
}

// Daemon coordinates the HTTP surface and the job registry, and enforces
// single-instance execution through a lock file.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *jobs.Store
	manager *jobs.Manager
	engine  EngineProbe
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, manager *jobs.Manager, engine EngineProbe, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || manager == nil || engine == nil {
		return nil, errors.New("daemon requires config, store, manager, and engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "transcriberd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		manager:  manager,
		engine:   engine,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, manager, engine, logger)
	return d, nil
}

// Start acquires the daemon lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another transcriber daemon instance is already running")
	}

	if free, err := availableBytes(d.cfg.Paths.JobsDir); err != nil {
		d.logger.Warn("disk space probe failed", logging.Error(err))
	} else {
		d.logger.Info("jobs volume headroom", logging.Int64("free_mb", int64(free/(1024*1024))))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("transcriber daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Paths.APIBind))
	return nil
}

// Stop shuts the API down, waits for in-flight jobs, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.manager.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("transcriber daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has completed without a matching Stop.
func (d *Daemon) Running() bool {
	return d.running.Load()
}
