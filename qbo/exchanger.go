package qbo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout bounds every call to the token endpoint and the API.
	DefaultTimeout = 30 * time.Second

	maxTokenResponse = 1 << 20
)

// ExchangerConfig describes the OAuth client registered with the provider.
type ExchangerConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURI  string
	Scopes       []string
	Timeout      time.Duration
}

// Exchanger performs the two token-endpoint grants.
type Exchanger struct {
	cfg        ExchangerConfig
	oauth      *oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// ExchangerOption configures an Exchanger.
type ExchangerOption func(*Exchanger)

// WithHTTPClient sets the client used for token requests. It must not retry.
func WithHTTPClient(c *http.Client) ExchangerOption {
	return func(e *Exchanger) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// WithLogger sets the exchanger logger.
func WithLogger(l *slog.Logger) ExchangerOption {
	return func(e *Exchanger) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExchanger validates cfg and builds an Exchanger.
func NewExchanger(cfg ExchangerConfig, opts ...ExchangerOption) (*Exchanger, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("client id and client secret are required")
	}
	if cfg.TokenURL == "" {
		return nil, errors.New("token URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	e := &Exchanger{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
		},
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// AuthCodeURL is the consent page the operator is sent to.
func (e *Exchanger) AuthCodeURL(state string) string {
	return e.oauth.AuthCodeURL(state)
}

// RedirectURI is the configured callback location.
func (e *Exchanger) RedirectURI() string {
	return e.cfg.RedirectURI
}

// ExchangeCode trades an authorization code for tokens. A rejected code is
// not retried.
func (e *Exchanger) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	if redirectURI == "" {
		redirectURI = e.cfg.RedirectURI
	}
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	return e.grant(ctx, "exchange", form)
}

// Refresh trades a refresh token for a new access token. The provider may
// or may not rotate the refresh token.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token is empty")
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return e.grant(ctx, "refresh", form)
}

type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	TokenType             string `json:"token_type"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"x_refresh_token_expires_in"`
	Scope                 string `json:"scope"`
	IDToken               string `json:"id_token,omitempty"`
}

func (e *Exchanger) grant(ctx context.Context, op string, form url.Values) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.cfg.TokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.SetBasicAuth(e.cfg.ClientID, e.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, WrapTransportError("token "+op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	if err != nil {
		return nil, WrapTransportError("token "+op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.Warn("token endpoint rejected grant",
			"op", op,
			"status", resp.StatusCode,
			"elapsed", time.Since(start))
		return nil, &UpstreamAuthError{Op: op, StatusCode: resp.StatusCode, Body: body}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if err := validateTokenResponse(&tr); err != nil {
		return nil, fmt.Errorf("invalid token response: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
	}
	if tr.ExpiresIn > 0 {
		tok.Expiry = e.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	extra := map[string]any{}
	if tr.Scope != "" {
		extra["scope"] = tr.Scope
	}
	if tr.RefreshTokenExpiresIn > 0 {
		extra["x_refresh_token_expires_in"] = tr.RefreshTokenExpiresIn
	}
	if tr.IDToken != "" {
		extra["id_token"] = tr.IDToken
	}

	e.logger.Debug("token grant succeeded",
		"op", op,
		"expires_in", tr.ExpiresIn,
		"rotated_refresh_token", tr.RefreshToken != "",
		"elapsed", time.Since(start))

	return tok.WithExtra(extra), nil
}

func validateTokenResponse(tr *tokenResponse) error {
	if tr.AccessToken == "" {
		return errors.New("access_token is empty")
	}
	if tr.ExpiresIn < 0 {
		return fmt.Errorf("expires_in must be non-negative, got %d", tr.ExpiresIn)
	}
	if tr.TokenType != "" && !strings.EqualFold(tr.TokenType, "bearer") {
		return fmt.Errorf("unsupported token_type %q", tr.TokenType)
	}
	return nil
}
