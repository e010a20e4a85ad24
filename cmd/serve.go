package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/smtpbridge/internal/account"
	"github.com/teemow/smtpbridge/internal/audit"
	"github.com/teemow/smtpbridge/internal/gmail"
	"github.com/teemow/smtpbridge/internal/google"
	"github.com/teemow/smtpbridge/internal/instrumentation"
	"github.com/teemow/smtpbridge/internal/logging"
	"github.com/teemow/smtpbridge/internal/registration"
	"github.com/teemow/smtpbridge/internal/server"
	"github.com/teemow/smtpbridge/internal/smtpauth"
	"github.com/teemow/smtpbridge/internal/smtpserver"
	"github.com/teemow/smtpbridge/internal/token"
)

const shutdownTimeout = 30 * time.Second

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// ServeConfig is the complete configuration of the serve command.
type ServeConfig struct {
	SMTPAddr string
	HTTPAddr string
	// BaseURL is the public URL of the registration pages.
	BaseURL string
	// Domain is announced in the SMTP greeting.
	Domain string

	GoogleClientID     string
	GoogleClientSecret string

	Store   StoreConfig
	Metrics MetricsConfig

	Debug     bool
	LogFormat string
}

// Validate reports the first configuration problem found.
func (c ServeConfig) Validate() error {
	if c.SMTPAddr == "" {
		return errors.New("SMTP address is required")
	}
	if c.HTTPAddr == "" {
		return errors.New("HTTP address is required")
	}
	if err := server.ValidateBaseURL(c.BaseURL); err != nil {
		return err
	}
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return errors.New("Google OAuth client is required (--google-client-id/--google-client-secret or GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET)")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics address is required when metrics are enabled")
	}
	return c.Store.Validate()
}

// RedirectURL is the OAuth callback registered with Google.
func (c ServeConfig) RedirectURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + google.CallbackPath
}

// RegisterURL is shown to SMTP clients whose grant must be renewed.
func (c ServeConfig) RegisterURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/register"
}

// smtpEndpoint returns the host and port users should put in their mail
// client. A listener bound to all interfaces is advertised under the
// public host name.
func (c ServeConfig) smtpEndpoint() (string, string) {
	host, port, err := net.SplitHostPort(c.SMTPAddr)
	if err != nil {
		return c.SMTPAddr, ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		if u, err := url.Parse(c.BaseURL); err == nil {
			host = u.Hostname()
		}
	}
	return host, port
}

func newServeCmd() *cobra.Command {
	var cfg ServeConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the SMTP bridge and registration server",
		Long: `Start the SMTP listener and the registration web server.

SMTP clients authenticate with their Gmail address as username and the API key
issued at registration as password. Messages are delivered through the Gmail
API with the account's OAuth token, which is refreshed automatically.

The registration pages must be reachable at --base-url, and
<base-url>/oauth/callback must be an authorized redirect URI of the Google
OAuth client.

The SMTP listener does not offer STARTTLS. Bind it to loopback or a private
network.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadServeEnvVars(cmd, &cfg)
			cfg.Store.Debug = cfg.Debug
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", logging.FormatText, "Log format: text or json. Can also use SMTPBRIDGE_LOG_FORMAT env var.")
	cmd.Flags().StringVar(&cfg.SMTPAddr, "smtp-addr", ":2525", "SMTP listen address. Can also use SMTPBRIDGE_SMTP_ADDR env var.")
	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", ":8080", "Registration web server address. Can also use SMTPBRIDGE_HTTP_ADDR env var.")
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "", "Public base URL of the registration pages. Required. Can also use SMTPBRIDGE_BASE_URL env var. Example: https://smtp.example.com")
	cmd.Flags().StringVar(&cfg.Domain, "domain", "localhost", "Domain announced in the SMTP greeting. Can also use SMTPBRIDGE_DOMAIN env var.")
	cmd.Flags().StringVar(&cfg.GoogleClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&cfg.GoogleClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	addStoreFlags(cmd, &cfg.Store)

	// Metrics server flags
	cmd.Flags().BoolVar(&cfg.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&cfg.Metrics.Addr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// loadServeEnvVars applies environment variables for every flag that was not
// explicitly set.
func loadServeEnvVars(cmd *cobra.Command, cfg *ServeConfig) {
	envString(cmd, "log-format", "SMTPBRIDGE_LOG_FORMAT", &cfg.LogFormat)
	envString(cmd, "smtp-addr", "SMTPBRIDGE_SMTP_ADDR", &cfg.SMTPAddr)
	envString(cmd, "http-addr", "SMTPBRIDGE_HTTP_ADDR", &cfg.HTTPAddr)
	envString(cmd, "base-url", "SMTPBRIDGE_BASE_URL", &cfg.BaseURL)
	envString(cmd, "domain", "SMTPBRIDGE_DOMAIN", &cfg.Domain)
	envString(cmd, "google-client-id", "GOOGLE_CLIENT_ID", &cfg.GoogleClientID)
	envString(cmd, "google-client-secret", "GOOGLE_CLIENT_SECRET", &cfg.GoogleClientSecret)
	envBool(cmd, "metrics-enabled", "METRICS_ENABLED", &cfg.Metrics.Enabled)
	envString(cmd, "metrics-addr", "METRICS_ADDR", &cfg.Metrics.Addr)
	loadStoreEnvVars(cmd, &cfg.Store)
}

func runServe(cfg ServeConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewLogger(os.Stderr, logging.Options{Debug: cfg.Debug, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()
	auditLog := audit.NewLogger(logger)

	store, db, hasher, err := openStore(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := account.Close(db); err != nil {
			logger.Warn("error closing database", logging.Err(err))
		}
	}()

	oauthConfig := google.NewOAuthConfig(google.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.RedirectURL(),
	})
	httpClient := google.NewHTTPClient()

	tokens := token.NewManager(store, token.NewOAuthRefresher(oauthConfig, httpClient),
		token.WithLogger(logger),
		token.WithMetrics(metrics),
		token.WithAudit(auditLog),
	)
	bridge := smtpauth.NewBridge(store, hasher,
		smtpauth.WithLogger(logger),
		smtpauth.WithMetrics(metrics),
		smtpauth.WithAudit(auditLog),
	)
	sender := gmail.NewSender(
		gmail.WithHTTPClient(httpClient),
		gmail.WithLogger(logger),
		gmail.WithMetrics(metrics),
	)
	flow := registration.NewFlow(
		registration.NewGoogleProvider(oauthConfig, registration.WithProviderHTTPClient(httpClient)),
		store,
		registration.WithLogger(logger),
		registration.WithMetrics(metrics),
		registration.WithAudit(auditLog),
	)

	backend := smtpserver.NewBackend(bridge, tokens, sender,
		smtpserver.WithRegisterURL(cfg.RegisterURL()),
		smtpserver.WithLogger(logger),
		smtpserver.WithMetrics(metrics),
		smtpserver.WithBaseContext(shutdownCtx),
	)
	smtpSrv := smtpserver.NewServer(smtpserver.Config{
		Addr:   cfg.SMTPAddr,
		Domain: cfg.Domain,
	}, backend, logger)

	health := server.NewHealthChecker()
	health.AddCheck("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	smtpHost, smtpPort := cfg.smtpEndpoint()
	webSrv, err := server.NewWebServer(server.WebConfig{
		Addr:     cfg.HTTPAddr,
		BaseURL:  cfg.BaseURL,
		SMTPHost: smtpHost,
		SMTPPort: smtpPort,
	}, flow, health, metrics, logger)
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	var metricsSrv *server.MetricsServer
	if cfg.Metrics.Enabled && provider.ServesPrometheus() {
		metricsSrv, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			InstrumentationProvider: provider,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	} else if cfg.Metrics.Enabled {
		logger.Info("metrics server disabled: instrumentation does not export to prometheus")
	}

	errCh := make(chan error, 3)
	go func() { errCh <- wrapServeErr("smtp", smtpSrv.ListenAndServe()) }()
	go func() { errCh <- wrapServeErr("http", webSrv.ListenAndServe()) }()
	running := 2
	if metricsSrv != nil {
		running++
		go func() { errCh <- wrapServeErr("metrics", metricsSrv.ListenAndServe()) }()
	}

	health.SetReady(true)
	logger.Info("smtpbridge started",
		slog.String("version", version),
		slog.String("smtp_addr", cfg.SMTPAddr),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("base_url", cfg.BaseURL))

	var serveErr error
	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		running--
		if serveErr != nil {
			logger.Error("server stopped", logging.Err(serveErr))
		}
	}

	health.SetShuttingDown()
	ctx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	var shutdownErrs []error
	if err := smtpSrv.Shutdown(ctx); err != nil {
		shutdownErrs = append(shutdownErrs, fmt.Errorf("smtp shutdown: %w", err))
	}
	if err := webSrv.Shutdown(ctx); err != nil {
		shutdownErrs = append(shutdownErrs, fmt.Errorf("http shutdown: %w", err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			shutdownErrs = append(shutdownErrs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	for ; running > 0; running-- {
		if err := <-errCh; err != nil && serveErr == nil {
			serveErr = err
		}
	}
	flow.Wait()

	logger.Info("smtpbridge stopped")
	return errors.Join(append([]error{serveErr}, shutdownErrs...)...)
}

func wrapServeErr(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s server: %w", name, err)
}
