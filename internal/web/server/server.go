package server

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Server wraps http.Server with pathsec's timeouts and optional TLS
type Server struct {
	httpServer *http.Server
	config     *Config
	listener   net.Listener
}

// Config holds server configuration
type Config struct {
	// Address is the server listen address (e.g., "localhost:8080")
	Address string

	// Handler is the HTTP handler for the server
	Handler http.Handler

	// TLS configuration (nil = plain HTTP)
	TLSConfig *TLSConfig

	// Timeouts
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration

	// MaxHeaderBytes limits request header size
	MaxHeaderBytes int

	// Database is the audit database whose pool is tuned on startup
	Database *DatabaseConfig
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	// CertFile is the path to the TLS certificate
	CertFile string

	// KeyFile is the path to the TLS private key
	KeyFile string

	// MinVersion is the minimum TLS version (default: TLS 1.2)
	MinVersion uint16
}

// DatabaseConfig holds database connection pool configuration
type DatabaseConfig struct {
	// DB is the database connection
	DB *sql.DB

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns the server configuration used by `pathsec serve`
func DefaultConfig(handler http.Handler) *Config {
	return &Config{
		Address:           "localhost:8080",
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    64 << 10,
	}
}

// DefaultDatabaseConfig returns pool settings for the audit database
func DefaultDatabaseConfig(db *sql.DB) *DatabaseConfig {
	return &DatabaseConfig{
		DB:              db,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// New creates a new server instance
func New(config *Config) (*Server, error) {
	if config == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if config.Handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	if config.Database != nil {
		if err := configureDatabasePool(config.Database); err != nil {
			return nil, fmt.Errorf("failed to configure database pool: %w", err)
		}
	}

	httpServer := &http.Server{
		Addr:              config.Address,
		Handler:           config.Handler,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}

	if config.TLSConfig != nil {
		minVersion := config.TLSConfig.MinVersion
		if minVersion == 0 {
			minVersion = tls.VersionTLS12
		}
		httpServer.TLSConfig = &tls.Config{MinVersion: minVersion}
	}

	return &Server{
		httpServer: httpServer,
		config:     config,
	}, nil
}

// Listen binds the configured address. Calling it before Serve lets callers
// learn the real address when listening on port 0.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener
	return nil
}

// Serve accepts connections until the server is shut down. It returns
// http.ErrServerClosed after a graceful shutdown.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}
	if s.config.TLSConfig != nil {
		return s.httpServer.ServeTLS(s.listener, s.config.TLSConfig.CertFile, s.config.TLSConfig.KeyFile)
	}
	return s.httpServer.Serve(s.listener)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound address, or the configured one before Listen
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

func configureDatabasePool(config *DatabaseConfig) error {
	if config.DB == nil {
		return errors.New("database connection cannot be nil")
	}

	config.DB.SetMaxOpenConns(config.MaxOpenConns)
	config.DB.SetMaxIdleConns(config.MaxIdleConns)
	config.DB.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := config.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
