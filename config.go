package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"gopkg.in/yaml.v3"

	"github.com/go-authgate/qbo-bridge/tokens"
)

// Config is the resolved runtime configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	AuthURL      string
	TokenURL     string
	APIHost      string
	MinorVersion string

	ListenAddr string

	TokenStore  string
	TokenFile   string
	DatabaseDSN string
	S3          tokens.S3Config

	APAccountID      string
	ExpenseAccountID string

	ExtractURL     string
	ExtractAPIKey  string
	ExtractTimeout time.Duration

	HTTPTimeout time.Duration
	RefreshSkew time.Duration

	LogLevel  string
	LogFormat string
}

// flagSource is the part of *pflag.FlagSet the loader reads.
type flagSource interface {
	Changed(name string) bool
	GetString(name string) (string, error)
}

type setting struct {
	env  string // environment key; lower-cased it is also the YAML key
	flag string
	def  string
	dst  *string
}

// loadConfig resolves every setting with priority flag > env > file > default.
func loadConfig(flags flagSource, file map[string]string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	var httpTimeout, extractTimeout, refreshSkew string

	settings := []setting{
		{"CLIENT_ID", "client-id", "", &cfg.ClientID},
		{"CLIENT_SECRET", "", "", &cfg.ClientSecret},
		{"REDIRECT_URI", "redirect-uri", "http://localhost:8000/auth/callback", &cfg.RedirectURI},
		{"SCOPE", "", "com.intuit.quickbooks.accounting", &cfg.Scope},
		{"AUTH_URL", "", "https://appcenter.intuit.com/connect/oauth2", &cfg.AuthURL},
		{"TOKEN_URL", "", "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer", &cfg.TokenURL},
		{"API_HOST", "api-host", "https://sandbox-quickbooks.api.intuit.com", &cfg.APIHost},
		{"MINOR_VERSION", "", "75", &cfg.MinorVersion},
		{"LISTEN_ADDR", "listen", ":8000", &cfg.ListenAddr},
		{"TOKEN_STORE", "token-store", tokens.KindFile, &cfg.TokenStore},
		{"TOKEN_FILE", "token-file", "tokens.json", &cfg.TokenFile},
		{"DATABASE_DSN", "", "", &cfg.DatabaseDSN},
		{"S3_ENDPOINT", "", "", &cfg.S3.Endpoint},
		{"S3_REGION", "", "", &cfg.S3.Region},
		{"S3_BUCKET", "", "", &cfg.S3.Bucket},
		{"S3_KEY", "", "tokens.json", &cfg.S3.Key},
		{"S3_ACCESS_KEY", "", "", &cfg.S3.AccessKey},
		{"S3_SECRET_KEY", "", "", &cfg.S3.SecretKey},
		{"AP_ACCOUNT_ID", "", "", &cfg.APAccountID},
		{"EXPENSE_ACCOUNT_ID", "", "", &cfg.ExpenseAccountID},
		{"EXTRACT_URL", "", "", &cfg.ExtractURL},
		{"EXTRACT_API_KEY", "", "", &cfg.ExtractAPIKey},
		{"EXTRACT_TIMEOUT", "", "120s", &extractTimeout},
		{"HTTP_TIMEOUT", "", "30s", &httpTimeout},
		{"REFRESH_SKEW", "", "0s", &refreshSkew},
		{"LOG_LEVEL", "log-level", "info", &cfg.LogLevel},
		{"LOG_FORMAT", "log-format", "text", &cfg.LogFormat},
	}

	for _, s := range settings {
		var flagValue string
		if s.flag != "" && flags != nil && flags.Changed(s.flag) {
			flagValue, _ = flags.GetString(s.flag)
		}
		*s.dst = strings.TrimSpace(getConfig(flagValue, s.env, file, getenv, s.def))
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"HTTP_TIMEOUT", httpTimeout, &cfg.HTTPTimeout},
		{"EXTRACT_TIMEOUT", extractTimeout, &cfg.ExtractTimeout},
		{"REFRESH_SKEW", refreshSkew, &cfg.RefreshSkew},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.raw)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid %s %q: must be a non-negative duration like 30s", d.key, d.raw)
		}
		*d.dst = v
	}

	type namedURL struct{ key, raw string }
	urls := []namedURL{
		{"AUTH_URL", cfg.AuthURL},
		{"TOKEN_URL", cfg.TokenURL},
		{"API_HOST", cfg.APIHost},
		{"REDIRECT_URI", cfg.RedirectURI},
	}
	if cfg.ExtractURL != "" {
		urls = append(urls, namedURL{"EXTRACT_URL", cfg.ExtractURL})
	}
	for _, u := range urls {
		if err := validateURL(u.raw); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", u.key, err)
		}
	}

	return cfg, nil
}

// getConfig returns value with priority: flag > env > file > default
func getConfig(flagValue, envKey string, file map[string]string, getenv func(string) string, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if value := getenv(envKey); value != "" {
		return value
	}
	if value := file[strings.ToLower(envKey)]; value != "" {
		return value
	}
	return defaultValue
}

// readConfigFile loads a flat YAML file of lower-case setting names.
// An empty path yields no values.
func readConfigFile(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[strings.ToLower(k)] = v
	}
	return out, nil
}

// validateURL validates that a URL is properly formatted
func validateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

// requireClient reports a readable error when the OAuth client is not configured.
func (c *Config) requireClient() error {
	if c.ClientID != "" && c.ClientSecret != "" {
		return nil
	}
	return errors.New(`CLIENT_ID and CLIENT_SECRET are required. Provide them via:
  1. Command line flag: --client-id=<id> (secret via env or config file only)
  2. Environment variables: CLIENT_ID=<id> CLIENT_SECRET=<secret>
  3. .env file or the YAML file given with --config`)
}

// sandbox reports whether the API host is the provider's sandbox.
func (c *Config) sandbox() bool {
	return strings.Contains(strings.ToLower(c.APIHost), "sandbox")
}

// insecureURLs lists the provider endpoints configured over plain HTTP.
func (c *Config) insecureURLs() []string {
	var out []string
	for _, u := range []string{c.TokenURL, c.APIHost} {
		if strings.HasPrefix(strings.ToLower(u), "http://") {
			out = append(out, u)
		}
	}
	return out
}

func (c *Config) storeConfig() tokens.StoreConfig {
	return tokens.StoreConfig{
		Kind:        c.TokenStore,
		Path:        c.TokenFile,
		DatabaseDSN: c.DatabaseDSN,
		S3:          c.S3,
	}
}

// storeLocation names where tokens are kept, for operator output.
func (c *Config) storeLocation() string {
	switch c.TokenStore {
	case tokens.KindPostgres:
		return "postgres"
	case tokens.KindS3:
		return "s3://" + c.S3.Bucket + "/" + c.S3.Key
	case tokens.KindMemory:
		return "memory"
	default:
		return c.TokenFile
	}
}

// newHTTPClients builds the plain client used for token calls and writes
// and the retrying client used for API reads. Both share one transport.
func newHTTPClients() (*http.Client, *retry.Client, error) {
	base := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableKeepAlives:   false,
		},
	}

	reads, err := retry.NewBackgroundClient(
		retry.WithHTTPClient(base),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create retry client: %w", err)
	}
	return base, reads, nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
