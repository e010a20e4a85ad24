package cmd

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/spf13/cobra"
	"github.com/wneessen/go-mail"
	"github.com/wneessen/go-mail/smtp"
)

// SendTestConfig describes a test message submitted to a running bridge.
type SendTestConfig struct {
	Server   string
	Username string
	APIKey   string
	To       []string
	Subject  string
	Body     string
	Timeout  time.Duration
}

// Validate reports missing or malformed settings.
func (c SendTestConfig) Validate() error {
	if c.Username == "" || c.APIKey == "" {
		return errors.New("username and API key are required")
	}
	if len(c.To) == 0 {
		return errors.New("at least one recipient is required")
	}
	if _, _, err := splitServer(c.Server); err != nil {
		return err
	}
	return nil
}

func newSendTestCmd() *cobra.Command {
	var cfg SendTestConfig

	cmd := &cobra.Command{
		Use:   "send-test",
		Short: "Send a test message through a running bridge",
		Long: `Connect to a running smtpbridge as an ordinary SMTP client would, authenticate
with AUTH PLAIN and submit a short message.

Use it to check a freshly issued API key end to end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			envString(cmd, "server", "SMTPBRIDGE_SMTP_ADDR", &cfg.Server)
			if len(cfg.To) == 0 && cfg.Username != "" {
				cfg.To = []string{cfg.Username}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := sendTestMessage(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test message sent to %v\n", cfg.To)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Server, "server", "localhost:2525", "Bridge SMTP address (host:port)")
	cmd.Flags().StringVar(&cfg.Username, "username", "", "Registered Gmail address")
	cmd.Flags().StringVar(&cfg.APIKey, "api-key", "", "API key issued at registration")
	cmd.Flags().StringSliceVar(&cfg.To, "to", nil, "Recipient addresses (default: the username)")
	cmd.Flags().StringVar(&cfg.Subject, "subject", "smtpbridge test message", "Message subject")
	cmd.Flags().StringVar(&cfg.Body, "body", "This message was relayed by smtpbridge.", "Message body")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "Connection timeout")

	return cmd
}

func sendTestMessage(cfg SendTestConfig) error {
	host, port, err := splitServer(cfg.Server)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(cfg.Username); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(cfg.To...); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(cfg.Subject)
	msg.SetBodyString(mail.TypeTextPlain, cfg.Body)

	// The bridge does not offer STARTTLS, and go-mail's own PLAIN auth
	// refuses plain TCP to anything but localhost.
	client, err := mail.NewClient(host,
		mail.WithPort(port),
		mail.WithSMTPAuthCustom(saslAuth{client: sasl.NewPlainClient("", cfg.Username, cfg.APIKey)}),
		mail.WithTLSPolicy(mail.NoTLS),
		mail.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send test message: %w", err)
	}
	return nil
}

// saslAuth drives a go-sasl client as go-mail SMTP auth.
type saslAuth struct {
	client sasl.Client
}

func (a saslAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return a.client.Start()
}

func (a saslAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	return a.client.Next(fromServer)
}

func splitServer(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid server port %q", portStr)
	}
	if host == "" {
		host = "localhost"
	}
	return host, port, nil
}
