package qbo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/go-authgate/qbo-bridge/tokens"
)

const (
	refreshFlightKey = "refresh"
	drainLimit       = 64 << 10
)

// RequestFunc issues one API call with the given credentials.
type RequestFunc func(ctx context.Context, accessToken, realmID string) (*http.Response, error)

// Grants is the token endpoint as the session needs it. *Exchanger
// satisfies it.
type Grants interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Session runs API calls with the stored credentials and refreshes them
// once when the API answers 401.
type Session struct {
	store  tokens.Store
	grants Grants
	flight singleflight.Group
	logger *slog.Logger
	skew   time.Duration
	now    func() time.Time
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRefreshSkew turns on proactive refresh for tokens that expire within d.
// Zero leaves refresh purely reactive.
func WithRefreshSkew(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.skew = d
		}
	}
}

// NewSession builds a session over store and grants.
func NewSession(store tokens.Store, grants Grants, opts ...SessionOption) *Session {
	s := &Session{
		store:  store,
		grants: grants,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the stored token set, or nil when none exists.
func (s *Session) Current(ctx context.Context) (*tokens.TokenSet, error) {
	return s.store.Load(ctx)
}

// Authorize completes the authorization-code flow and stores the first
// token set for realmID.
func (s *Session) Authorize(ctx context.Context, code, realmID, redirectURI string) (*tokens.TokenSet, error) {
	if code == "" || realmID == "" {
		return nil, ErrInvalidCallback
	}

	tok, err := s.grants.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}

	ts := tokens.FromToken(tok, realmID, s.now())
	if err := s.store.Save(ctx, ts); err != nil {
		return nil, fmt.Errorf("failed to save tokens: %w", err)
	}

	s.logger.Info("company authorized",
		"realm_id", realmID,
		"scope", ts.Scope,
		"has_refresh_token", ts.RefreshToken != "")
	return ts, nil
}

// Do runs fn with the stored credentials.
//
// A 401 is answered with one refresh and one retry when a refresh token is
// on file; the retry's outcome is final. Any other status is returned as is.
// The refreshed set is saved before the retry is sent.
func (s *Session) Do(ctx context.Context, fn RequestFunc) (*http.Response, error) {
	ts, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	if !ts.Usable() {
		return nil, ErrNotAuthorized
	}

	refreshed := false
	if s.skew > 0 && ts.RefreshToken != "" && ts.ExpiresWithin(s.skew, s.now()) {
		s.logger.Debug("access token close to expiry, refreshing early",
			"expires_at", ts.ExpiresAt, "version", ts.Version)
		if ts, err = s.refresh(ctx, ts); err != nil {
			return nil, err
		}
		refreshed = true
	}

	resp, err := fn(ctx, ts.AccessToken, ts.RealmID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || refreshed {
		return resp, nil
	}

	if ts.RefreshToken == "" {
		s.logger.Warn("API returned 401 and no refresh token is stored", "realm_id", ts.RealmID)
		return resp, nil
	}

	drainAndClose(resp.Body)

	next, err := s.refresh(ctx, ts)
	if err != nil {
		return nil, err
	}
	return fn(ctx, next.AccessToken, next.RealmID)
}

// refresh rotates the credentials held in seen. Concurrent callers share a
// single token-endpoint call, and a caller holding an outdated version picks
// up the already stored successor instead of refreshing again.
func (s *Session) refresh(ctx context.Context, seen *tokens.TokenSet) (*tokens.TokenSet, error) {
	ch := s.flight.DoChan(refreshFlightKey, func() (any, error) {
		// the flight outlives any one caller that gives up
		fctx := context.WithoutCancel(ctx)

		current, err := s.store.Load(fctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load tokens: %w", err)
		}
		if current.Usable() && current.Version > seen.Version {
			s.logger.Debug("tokens already refreshed by another request",
				"seen_version", seen.Version, "stored_version", current.Version)
			return current, nil
		}

		base := seen
		if current.Complete() && current.Version == seen.Version {
			base = current
		}

		tok, err := s.grants.Refresh(fctx, base.RefreshToken)
		if err != nil {
			s.logger.Error("token refresh failed", "realm_id", base.RealmID, "error", err)
			return nil, fmt.Errorf("failed to refresh access token: %w", err)
		}

		next := base.Merge(tok, s.now())
		if err := s.store.Save(fctx, next); err != nil {
			s.logger.Error("refreshed tokens could not be saved",
				"realm_id", next.RealmID, "version", next.Version, "error", err)
			return nil, fmt.Errorf("failed to save refreshed tokens: %w", err)
		}

		s.logger.Info("access token refreshed",
			"realm_id", next.RealmID,
			"version", next.Version,
			"rotated_refresh_token", next.RefreshToken != base.RefreshToken)
		return next, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		ts, ok := r.Val.(*tokens.TokenSet)
		if !ok || ts == nil {
			return nil, errors.New("refresh produced no token set")
		}
		return ts.Clone(), nil
	}
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, drainLimit))
	_ = body.Close()
}
