package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ShutdownHook releases a resource after the server has drained
type ShutdownHook func(ctx context.Context) error

// GracefulShutdown runs a server until its context ends, then drains
// in-flight requests and runs cleanup hooks
type GracefulShutdown struct {
	server  *Server
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []ShutdownHook
}

// NewGracefulShutdown creates a graceful shutdown handler
func NewGracefulShutdown(server *Server, timeout time.Duration, logger *zap.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GracefulShutdown{
		server:  server,
		timeout: timeout,
		logger:  logger,
	}
}

// RegisterHook registers a hook. Hooks run in reverse registration order.
func (gs *GracefulShutdown) RegisterHook(hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, hook)
}

// Run serves until ctx is cancelled or the server fails, then shuts down
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	if err := gs.server.Listen(); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		gs.logger.Info("server listening", zap.String("addr", gs.server.Addr()))
		errChan <- gs.server.Serve()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return errors.Join(err, gs.runHooks())
	case <-ctx.Done():
		gs.logger.Info("shutting down", zap.Duration("timeout", gs.timeout))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	var shutdownErr error
	if err := gs.server.Shutdown(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		gs.logger.Error("server shutdown failed", zap.Error(err))
	}
	<-errChan

	return errors.Join(shutdownErr, gs.runHooksWith(shutdownCtx))
}

func (gs *GracefulShutdown) runHooks() error {
	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()
	return gs.runHooksWith(ctx)
}

func (gs *GracefulShutdown) runHooksWith(ctx context.Context) error {
	gs.mu.Lock()
	hooks := make([]ShutdownHook, len(gs.hooks))
	copy(hooks, gs.hooks)
	gs.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			gs.logger.Warn("shutdown hook failed", zap.Int("hook", i), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		gs.logger.Info("shutdown complete")
	}
	return errors.Join(errs...)
}
