package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/smtpbridge/internal/crypto"
)

func testKey(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return crypto.KeyToBase64(key)
}

func validServeConfig(t *testing.T) ServeConfig {
	t.Helper()
	return ServeConfig{
		SMTPAddr:           ":2525",
		HTTPAddr:           ":8080",
		BaseURL:            "https://smtp.example.com",
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		Store:              StoreConfig{DBType: "sqlite", EncryptionKey: testKey(t)},
		Metrics:            MetricsConfig{Enabled: true, Addr: ":9090"},
	}
}

func TestServeConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServeConfig)
		wantErr string
	}{
		{name: "valid"},
		{name: "localhost http allowed", mutate: func(c *ServeConfig) { c.BaseURL = "http://localhost:8080" }},
		{name: "missing base url", mutate: func(c *ServeConfig) { c.BaseURL = "" }, wantErr: "base URL"},
		{name: "public http rejected", mutate: func(c *ServeConfig) { c.BaseURL = "http://smtp.example.com" }, wantErr: "must use https"},
		{name: "missing client id", mutate: func(c *ServeConfig) { c.GoogleClientID = "" }, wantErr: "Google OAuth client"},
		{name: "missing client secret", mutate: func(c *ServeConfig) { c.GoogleClientSecret = "" }, wantErr: "Google OAuth client"},
		{name: "missing smtp addr", mutate: func(c *ServeConfig) { c.SMTPAddr = "" }, wantErr: "SMTP address"},
		{name: "missing encryption key", mutate: func(c *ServeConfig) { c.Store.EncryptionKey = "" }, wantErr: "encryption key"},
		{name: "short encryption key", mutate: func(c *ServeConfig) { c.Store.EncryptionKey = "c2hvcnQ=" }, wantErr: "encryption key"},
		{name: "mysql without dsn", mutate: func(c *ServeConfig) { c.Store.DBType = "mysql" }, wantErr: "mysql"},
		{name: "unknown db type", mutate: func(c *ServeConfig) { c.Store.DBType = "postgres" }, wantErr: "unsupported database type"},
		{name: "metrics without addr", mutate: func(c *ServeConfig) { c.Metrics.Addr = "" }, wantErr: "metrics address"},
		{name: "metrics disabled without addr", mutate: func(c *ServeConfig) { c.Metrics = MetricsConfig{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validServeConfig(t)
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServeConfigURLs(t *testing.T) {
	cfg := ServeConfig{BaseURL: "https://smtp.example.com/", SMTPAddr: ":2525"}

	assert.Equal(t, "https://smtp.example.com/oauth/callback", cfg.RedirectURL())
	assert.Equal(t, "https://smtp.example.com/register", cfg.RegisterURL())

	host, port := cfg.smtpEndpoint()
	assert.Equal(t, "smtp.example.com", host)
	assert.Equal(t, "2525", port)

	cfg.SMTPAddr = "10.0.0.5:587"
	host, port = cfg.smtpEndpoint()
	assert.Equal(t, "10.0.0.5", host)
	assert.Equal(t, "587", port)
}

func TestLoadServeEnvVars(t *testing.T) {
	t.Setenv("SMTPBRIDGE_SMTP_ADDR", ":1025")
	t.Setenv("SMTPBRIDGE_HTTP_ADDR", ":9000")
	t.Setenv("SMTPBRIDGE_BASE_URL", "https://env.example.com")
	t.Setenv("SMTPBRIDGE_DB_TYPE", "mysql")
	t.Setenv("SMTPBRIDGE_DB_DSN", "user:pw@tcp(db:3306)/bridge")
	t.Setenv("SMTPBRIDGE_ENCRYPTION_KEY", "env-key")
	t.Setenv("SMTPBRIDGE_BCRYPT_COST", "12")
	t.Setenv("SMTPBRIDGE_DOMAIN", "mx.example.com")
	t.Setenv("GOOGLE_CLIENT_ID", "env-client")
	t.Setenv("GOOGLE_CLIENT_SECRET", "env-secret")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("METRICS_ADDR", ":9999")

	t.Run("env fills unset flags", func(t *testing.T) {
		cmd := newServeCmd()
		require.NoError(t, cmd.ParseFlags(nil))

		var cfg ServeConfig
		cfg.Metrics.Enabled = true
		loadServeEnvVars(cmd, &cfg)

		assert.Equal(t, ":1025", cfg.SMTPAddr)
		assert.Equal(t, ":9000", cfg.HTTPAddr)
		assert.Equal(t, "https://env.example.com", cfg.BaseURL)
		assert.Equal(t, "mx.example.com", cfg.Domain)
		assert.Equal(t, "env-client", cfg.GoogleClientID)
		assert.Equal(t, "env-secret", cfg.GoogleClientSecret)
		assert.Equal(t, "mysql", cfg.Store.DBType)
		assert.Equal(t, "user:pw@tcp(db:3306)/bridge", cfg.Store.DSN)
		assert.Equal(t, "env-key", cfg.Store.EncryptionKey)
		assert.Equal(t, 12, cfg.Store.BcryptCost)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, ":9999", cfg.Metrics.Addr)
	})

	t.Run("explicit flags win", func(t *testing.T) {
		cmd := newServeCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--smtp-addr=:25", "--google-client-id=flag-client", "--metrics-enabled=true"}))

		cfg := ServeConfig{SMTPAddr: ":25", GoogleClientID: "flag-client", Metrics: MetricsConfig{Enabled: true}}
		loadServeEnvVars(cmd, &cfg)

		assert.Equal(t, ":25", cfg.SMTPAddr)
		assert.Equal(t, "flag-client", cfg.GoogleClientID)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, ":9000", cfg.HTTPAddr)
	})
}

func TestLoadStoreEnvVarsIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("SMTPBRIDGE_BCRYPT_COST", "lots")
	t.Setenv("SMTPBRIDGE_STRICT_ENCRYPTION", "maybe")

	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	cfg := StoreConfig{BcryptCost: 10}
	loadStoreEnvVars(cmd, &cfg)

	assert.Equal(t, 10, cfg.BcryptCost)
	assert.False(t, cfg.StrictEncryption)
}
