package smtpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-smtp"
)

const (
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultMaxMessageBytes = 25 << 20
	DefaultMaxRecipients   = 100
)

// Config holds listener settings.
type Config struct {
	Addr   string
	Domain string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	MaxRecipients   int
}

// Server is an SMTP listener.
type Server struct {
	srv    *smtp.Server
	logger *slog.Logger
}

// NewServer creates a Server for backend.
func NewServer(cfg Config, backend *Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	srv := smtp.NewServer(backend)
	srv.Addr = cfg.Addr
	srv.Domain = cfg.Domain
	srv.ReadTimeout = orDuration(cfg.ReadTimeout, DefaultReadTimeout)
	srv.WriteTimeout = orDuration(cfg.WriteTimeout, DefaultWriteTimeout)
	srv.MaxMessageBytes = DefaultMaxMessageBytes
	if cfg.MaxMessageBytes > 0 {
		srv.MaxMessageBytes = cfg.MaxMessageBytes
	}
	srv.MaxRecipients = DefaultMaxRecipients
	if cfg.MaxRecipients > 0 {
		srv.MaxRecipients = cfg.MaxRecipients
	}
	// The listener offers no STARTTLS, so AUTH runs over plain TCP. Bind it
	// to loopback or a private network.
	srv.AllowInsecureAuth = true
	srv.ErrorLog = errorLog{logger: logger}

	return &Server{srv: srv, logger: logger}
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("smtp server listening", slog.String("addr", l.Addr().String()))
	err := s.srv.Serve(l)
	if errors.Is(err, smtp.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(l)
}

// Shutdown stops accepting connections and waits for open sessions to end
// or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func orDuration(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// errorLog routes go-smtp's internal log lines to slog.
type errorLog struct {
	logger *slog.Logger
}

func (l errorLog) Printf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), slog.String("source", "go-smtp"))
}

func (l errorLog) Println(v ...interface{}) {
	l.logger.Warn(fmt.Sprint(v...), slog.String("source", "go-smtp"))
}
