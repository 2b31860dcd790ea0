// Package server provides application lifecycle management including
// graceful startup and shutdown with signal handling.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service represents a long-running component that can be started and stopped.
type Service interface {
	// Start begins the service. It should block until the service is stopped
	// or an error occurs.
	Start() error
	// Stop gracefully stops the service.
	Stop()
}

// FuncService adapts a start/stop function pair into the Service interface.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

// Start calls the underlying start function.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls the underlying stop function.
func (f *FuncService) Stop() { f.StopFn() }

// Periodic runs fn every interval until stopped.
type Periodic struct {
	interval time.Duration
	fn       func(ctx context.Context)
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewPeriodic creates a Periodic service.
//
// Precondition: interval > 0; fn must be non-nil.
func NewPeriodic(interval time.Duration, fn func(ctx context.Context)) *Periodic {
	ctx, cancel := context.WithCancel(context.Background())
	return &Periodic{interval: interval, fn: fn, ctx: ctx, cancel: cancel}
}

// Start blocks, calling fn on every tick, until Stop is called.
func (p *Periodic) Start() error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case <-ticker.C:
			p.fn(p.ctx)
		}
	}
}

// Stop ends the loop; an in-flight fn observes a cancelled context.
func (p *Periodic) Stop() { p.cancel() }

// Lifecycle manages the startup and shutdown of multiple services and the
// resources they depend on. Services are started in order and stopped in reverse
// order; resources are closed in reverse order after every service has stopped.
type Lifecycle struct {
	logger      *zap.Logger
	stopTimeout time.Duration
	services    []namedService
	closers     []namedCloser
	signals     []os.Signal
	mu          sync.Mutex
}

type namedService struct {
	name    string
	service Service
}

type namedCloser struct {
	name  string
	close func()
}

// NewLifecycle creates a new Lifecycle manager that reacts to SIGINT and SIGTERM.
//
// Precondition: logger must be non-nil; stopTimeout > 0.
func NewLifecycle(logger *zap.Logger, stopTimeout time.Duration) *Lifecycle {
	return &Lifecycle{
		logger:      logger,
		stopTimeout: stopTimeout,
		signals:     []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Add registers a named service for lifecycle management.
// Services are started in the order they are added.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// AddCloser registers a resource released after all services stop, such as a
// connection pool or broker client.
//
// Precondition: name must be non-empty; closeFn must be non-nil.
func (l *Lifecycle) AddCloser(name string, closeFn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closers = append(l.closers, namedCloser{name: name, close: closeFn})
}

// Run starts all services and blocks until a termination signal is received,
// a service fails, or ctx is cancelled.
//
// Postcondition: All services are stopped and all resources closed when this
// method returns. Returns the first service error, if any.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	closers := append([]namedCloser(nil), l.closers...)
	l.mu.Unlock()

	errCh := make(chan error, len(services))
	for _, ns := range services {
		go func() {
			l.logger.Info("starting service", zap.String("service", ns.name))
			svcStart := time.Now()
			if err := ns.service.Start(); err != nil {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				errCh <- fmt.Errorf("service %s: %w", ns.name, err)
				cancel()
			}
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, l.signals...)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		l.logger.Error("service error, shutting down", zap.Error(runErr))
	case <-ctx.Done():
		select {
		case runErr = <-errCh:
			l.logger.Error("service error, shutting down", zap.Error(runErr))
		default:
			l.logger.Info("context cancelled, shutting down")
		}
	}

	l.shutdown(services, closers)

	l.logger.Info("shutdown complete", zap.Duration("total_uptime", time.Since(start)))
	return runErr
}

func (l *Lifecycle) shutdown(services []namedService, closers []namedCloser) {
	shutdownStart := time.Now()
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		l.bounded("service", ns.name, ns.service.Stop)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		nc := closers[i]
		l.bounded("resource", nc.name, nc.close)
	}
	l.logger.Info("all services stopped", zap.Duration("shutdown_elapsed", time.Since(shutdownStart)))
}

// bounded runs fn, abandoning it with a warning once stopTimeout elapses.
func (l *Lifecycle) bounded(kind, name string, fn func()) {
	start := time.Now()
	l.logger.Info("stopping "+kind, zap.String(kind, name))

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
		l.logger.Info(kind+" stopped", zap.String(kind, name), zap.Duration("elapsed", time.Since(start)))
	case <-time.After(l.stopTimeout):
		l.logger.Warn(kind+" did not stop in time", zap.String(kind, name), zap.Duration("timeout", l.stopTimeout))
	}
}
