package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/whack/internal/component"
	"github.com/rickgao/whack/internal/connection"
	"github.com/rickgao/whack/internal/manager"
)

// Target is the part of the manager the supervisor drives.
type Target interface {
	Lookup(subdomain string) (connection.Connection, bool)
	AddComponent(ctx context.Context, subdomain string, c component.Component) error
	RemoveComponent(subdomain string) error
}

// Factory builds a new component for subdomain.
type Factory func(subdomain string) (component.Component, error)

// Config holds supervisor configuration.
type Config struct {
	Interval    time.Duration // Check interval (default: 30s)
	Concurrency int           // Max concurrent reattaches (default: 4)
	Timeout     time.Duration // Per-reattach timeout (default: 15s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Concurrency: 4,
		Timeout:     15 * time.Second,
	}
}

// Stats counts supervisor activity since Start.
type Stats struct {
	Checks   int64 // Completed scan cycles
	Restarts int64 // Successful reattaches
	Failures int64 // Failed reattaches
}

// Supervisor periodically reattaches dropped components.
type Supervisor struct {
	cfg        Config
	target     Target
	subdomains []string
	factory    Factory
	logger     *slog.Logger

	checks   atomic.Int64
	restarts atomic.Int64
	failures atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Supervisor watching subdomains.
func New(cfg Config, target Target, subdomains []string, factory Factory, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Supervisor{
		cfg:        cfg,
		target:     target,
		subdomains: append([]string(nil), subdomains...),
		factory:    factory,
		logger:     logger,
	}
}

// Start begins the check loop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("component supervisor started",
		"interval", s.cfg.Interval,
		"subdomains", len(s.subdomains),
	)

	return nil
}

// Stop gracefully shuts down the supervisor.
func (s *Supervisor) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("component supervisor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns activity counters.
func (s *Supervisor) Stats() Stats {
	return Stats{
		Checks:   s.checks.Load(),
		Restarts: s.restarts.Load(),
		Failures: s.failures.Load(),
	}
}

// run is the main check loop.
func (s *Supervisor) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.CheckAll(s.ctx)
		}
	}
}

// CheckAll reattaches every watched sub-domain that is not connected.
func (s *Supervisor) CheckAll(ctx context.Context) {
	start := time.Now()

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup
	var restarted, failed atomic.Int64

	for _, sub := range s.subdomains {
		if conn, ok := s.target.Lookup(sub); ok && conn.IsConnected() {
			continue
		}

		wg.Add(1)
		go func(sub string) {
			defer wg.Done()

			// Acquire semaphore slot.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			err := s.reattach(ctx, sub)
			if errors.Is(err, manager.ErrSubdomainInUse) {
				// Another registration is mid-handshake.
				s.logger.Debug("component attach in progress", "subdomain", sub)
				return
			}
			if err != nil {
				s.logger.Warn("failed to reattach component",
					"subdomain", sub,
					"error", err,
				)
				failed.Add(1)
				return
			}

			restarted.Add(1)
		}(sub)
	}

	wg.Wait()

	s.checks.Add(1)
	s.restarts.Add(restarted.Load())
	s.failures.Add(failed.Load())

	if restarted.Load() > 0 || failed.Load() > 0 {
		s.logger.Info("supervisor cycle complete",
			"restarted", restarted.Load(),
			"failed", failed.Load(),
			"duration", time.Since(start),
		)
	}
}

// reattach drops any stale registration for sub and adds a new component.
func (s *Supervisor) reattach(ctx context.Context, sub string) error {
	if err := s.target.RemoveComponent(sub); err != nil && !errors.Is(err, manager.ErrSubdomainNotFound) {
		s.logger.Debug("stale connection shutdown failed", "subdomain", sub, "error", err)
	}

	c, err := s.factory(sub)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.target.AddComponent(ctx, sub, c); err != nil {
		return err
	}

	s.logger.Info("component reattached", "subdomain", sub)
	return nil
}
