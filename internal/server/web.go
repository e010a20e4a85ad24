package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/teemow/smtpbridge/internal/google"
	"github.com/teemow/smtpbridge/internal/instrumentation"
	"github.com/teemow/smtpbridge/internal/logging"
	"github.com/teemow/smtpbridge/internal/registration"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// RegistrationFlow is implemented by *registration.Flow.
type RegistrationFlow interface {
	AuthorizationURL(action registration.Action) (string, error)
	HandleCallback(ctx context.Context, cb registration.Callback) (*registration.Outcome, error)
}

// WebConfig configures the registration web server.
type WebConfig struct {
	Addr string
	// BaseURL is the public URL Google redirects back to.
	BaseURL string
	// SMTPHost and SMTPPort are shown to users as client settings.
	SMTPHost string
	SMTPPort string
}

// WebServer serves the registration pages and health probes.
type WebServer struct {
	httpServer *http.Server
	flow       RegistrationFlow
	config     WebConfig
	logger     *slog.Logger
}

// NewWebServer creates the registration web server.
func NewWebServer(config WebConfig, flow RegistrationFlow, health *HealthChecker, metrics *instrumentation.Metrics, logger *slog.Logger) (*WebServer, error) {
	if err := ValidateBaseURL(config.BaseURL); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithComponent(logger, "http")

	s := &WebServer{flow: flow, config: config, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /register", s.handleStart(registration.ActionRegister))
	mux.HandleFunc("GET /regenerate", s.handleStart(registration.ActionRegenerate))
	mux.HandleFunc("GET "+google.CallbackPath, s.handleCallback)
	if health != nil {
		health.RegisterHealthEndpoints(mux)
	}

	u, _ := url.Parse(config.BaseURL)
	handler := securityHeaders(u.Scheme == "https", mux)
	handler = instrumentationMiddleware(metrics, logger, handler)

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler including middleware.
func (s *WebServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve serves on l until Shutdown.
func (s *WebServer) Serve(l net.Listener) error {
	s.logger.Info("http server listening", slog.String("addr", l.Addr().String()), slog.String("base_url", s.config.BaseURL))
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *WebServer) ListenAndServe() error {
	l, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(l)
}

// Shutdown gracefully shuts down the server.
func (s *WebServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type pageData struct {
	Title    string
	Guidance string
	Email    string
	APIKey   string
	Failed   bool
	Retry    string
	SMTPHost string
	SMTPPort string
}

func (s *WebServer) page(title string) pageData {
	return pageData{Title: title, SMTPHost: s.config.SMTPHost, SMTPPort: s.config.SMTPPort}
}

func (s *WebServer) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, "index.html", s.page("Gmail SMTP bridge"))
}

func (s *WebServer) handleStart(action registration.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := s.flow.AuthorizationURL(action)
		if err != nil {
			s.logger.Error("failed to build authorization url", logging.Err(err))
			s.renderError(w)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

func (s *WebServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := s.flow.HandleCallback(r.Context(), registration.Callback{
		State: q.Get("state"),
		Code:  q.Get("code"),
		Error: q.Get("error"),
	})
	if err != nil {
		s.renderError(w)
		return
	}

	data := s.page(resultTitle(out.Status))
	data.Guidance = registration.Guidance(out)
	data.Email = out.Email
	data.APIKey = out.APIKey

	status := http.StatusOK
	switch out.Status {
	case registration.StatusRejected:
		data.Failed = true
		status = http.StatusBadRequest
		if out.Action != "" {
			data.Retry = string(out.Action)
		}
	case registration.StatusCancelled:
		if out.Action != "" {
			data.Retry = string(out.Action)
		}
	case registration.StatusAlreadyRegistered:
		data.Retry = string(registration.ActionRegenerate)
	}

	// The key is shown exactly once; keep it out of caches and history.
	w.Header().Set("Cache-Control", "no-store")
	s.render(w, status, "result.html", data)
}

func resultTitle(status registration.Status) string {
	switch status {
	case registration.StatusRegistered:
		return "Mailbox registered"
	case registration.StatusRegenerated:
		return "New API key issued"
	case registration.StatusAlreadyRegistered:
		return "Already registered"
	case registration.StatusCancelled:
		return "Authorization cancelled"
	default:
		return "Registration failed"
	}
}

func (s *WebServer) renderError(w http.ResponseWriter) {
	data := s.page("Something went wrong")
	data.Guidance = "The request could not be completed because of an internal error. Please try again in a moment."
	data.Failed = true
	s.render(w, http.StatusInternalServerError, "result.html", data)
}

func (s *WebServer) render(w http.ResponseWriter, status int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("failed to render template", slog.String("template", name), logging.Err(err))
	}
}
