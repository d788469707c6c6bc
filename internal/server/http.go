package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultAddr is the default address for the webhook server.
	DefaultAddr = ":8080"

	// DefaultReadHeaderTimeout bounds reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds writing a response. Webhook handlers only
	// enqueue work, so responses are fast.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the keep-alive idle timeout.
	DefaultIdleTimeout = 120 * time.Second
)

// HTTPServerConfig holds configuration for the webhook HTTP server.
type HTTPServerConfig struct {
	Addr    string
	Handler http.Handler

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string
}

// HTTPServer serves the webhook router.
type HTTPServer struct {
	httpServer *http.Server
	addr       string
	certFile   string
	keyFile    string
}

// NewHTTPServer validates config and creates an HTTPServer.
func NewHTTPServer(config HTTPServerConfig) (*HTTPServer, error) {
	if config.Handler == nil {
		return nil, fmt.Errorf("handler is required for HTTP server")
	}
	if (config.TLSCertFile == "") != (config.TLSKeyFile == "") {
		return nil, fmt.Errorf("both TLS certificate and key files must be set")
	}
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}

	return &HTTPServer{
		httpServer: &http.Server{
			Addr:              config.Addr,
			Handler:           config.Handler,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
		addr:     config.Addr,
		certFile: config.TLSCertFile,
		keyFile:  config.TLSKeyFile,
	}, nil
}

// Start listens and serves until Shutdown. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *HTTPServer) Start() error {
	return s.StartWithReadySignal(nil)
}

// StartWithReadySignal is Start that closes ready once the listener is bound.
func (s *HTTPServer) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()
	if ready != nil {
		close(ready)
	}

	if s.certFile != "" {
		slog.Info("starting webhook server", "addr", s.addr, "tls", true)
		return s.httpServer.ServeTLS(ln, s.certFile, s.keyFile)
	}
	slog.Info("starting webhook server", "addr", s.addr, "tls", false)
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once started, or the configured one.
func (s *HTTPServer) Addr() string {
	return s.addr
}
