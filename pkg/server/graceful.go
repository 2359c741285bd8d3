// Package server runs the operational HTTP endpoint of a graphcore process:
// metrics and health probes, with graceful shutdown and SIGHUP reload.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-graphcore/pkg/logging"
)

// DefaultShutdownTimeout bounds the drain of open connections.
const DefaultShutdownTimeout = 10 * time.Second

// ConfigReloadFunc is a function that reloads configuration
type ConfigReloadFunc func() error

// GracefulServer wraps an HTTP server with graceful shutdown capabilities
type GracefulServer struct {
	server          *http.Server
	logger          logging.Logger
	shutdownTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}

	configReloadFn ConfigReloadFunc
	configMu       sync.RWMutex
}

// NewGracefulServer creates a server for handler on addr. A nil logger
// discards output.
func NewGracefulServer(addr string, handler http.Handler, logger logging.Logger) *GracefulServer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &GracefulServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		logger:          logger.With(logging.Component("http")),
		shutdownTimeout: DefaultShutdownTimeout,
		ready:           make(chan struct{}),
	}
}

// Run serves until ctx is done, then drains connections. SIGHUP calls the
// reload function while running.
func (gs *GracefulServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return err
	}
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	gs.mu.Lock()
	gs.listener = ln
	gs.mu.Unlock()
	close(gs.ready)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- gs.server.Serve(ln)
	}()
	gs.logger.Info("http server started", logging.String("addr", ln.Addr().String()))

	for {
		select {
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-hup:
			gs.ReloadConfig()
		case <-ctx.Done():
			return gs.shutdown()
		}
	}
}

func (gs *GracefulServer) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), gs.shutdownTimeout)
	defer cancel()

	gs.logger.Info("http server draining", logging.Duration("timeout", gs.shutdownTimeout))
	if err := gs.server.Shutdown(ctx); err != nil {
		gs.logger.Error("http server shutdown failed", logging.Error(err))
		return err
	}
	gs.logger.Info("http server stopped")
	return nil
}

// Addr blocks until Run is listening and returns the bound address.
func (gs *GracefulServer) Addr() net.Addr {
	<-gs.ready
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.listener.Addr()
}

// SetConfigReloadFunc sets the function to call when configuration reload is triggered
func (gs *GracefulServer) SetConfigReloadFunc(fn ConfigReloadFunc) {
	gs.configMu.Lock()
	defer gs.configMu.Unlock()
	gs.configReloadFn = fn
}

// ReloadConfig triggers a configuration reload
func (gs *GracefulServer) ReloadConfig() error {
	gs.configMu.RLock()
	reloadFn := gs.configReloadFn
	gs.configMu.RUnlock()

	if reloadFn == nil {
		gs.logger.Info("configuration reload requested, but no reload function configured")
		return nil
	}

	if err := reloadFn(); err != nil {
		gs.logger.Error("configuration reload failed", logging.Error(err))
		return err
	}
	gs.logger.Info("configuration reloaded")
	return nil
}
