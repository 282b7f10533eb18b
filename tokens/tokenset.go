// Package tokens holds the single OAuth token set the bridge operates with
// and the stores it can be persisted to.
package tokens

import (
	"time"

	"golang.org/x/oauth2"
)

// redactedPrefixLen is how many characters of a secret the operator view keeps.
const redactedPrefixLen = 16

// TokenSet is the one live credential set for the connected company.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	RealmID      string    `json:"realm_id"`
	Scope        string    `json:"scope,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	IssuedAt     time.Time `json:"issued_at,omitzero"`

	// Version starts at 1 when the company is authorized and grows by one
	// on every successful refresh.
	Version int64 `json:"version"`
}

// FromToken builds the initial token set from an authorization-code grant.
func FromToken(tok *oauth2.Token, realmID string, now time.Time) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		RealmID:      realmID,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
		IssuedAt:     now,
		Version:      1,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		ts.Scope = scope
	}
	return ts
}

// Usable reports whether the set carries what an API call needs.
func (ts *TokenSet) Usable() bool {
	return ts != nil && ts.AccessToken != "" && ts.RealmID != ""
}

// Complete reports whether access token, refresh token and realm are all present.
func (ts *TokenSet) Complete() bool {
	return ts.Usable() && ts.RefreshToken != ""
}

// ExpiresWithin reports whether the access token expires within d.
// A set without a known expiry never does.
func (ts *TokenSet) ExpiresWithin(d time.Duration, now time.Time) bool {
	if ts == nil || ts.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(ts.ExpiresAt)
}

// Merge returns the set that results from a refresh grant. The realm is
// carried forward unchanged; a refresh token the provider did not rotate is
// kept.
func (ts *TokenSet) Merge(tok *oauth2.Token, now time.Time) *TokenSet {
	next := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		RealmID:      ts.RealmID,
		Scope:        ts.Scope,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
		IssuedAt:     now,
		Version:      ts.Version + 1,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = ts.RefreshToken
	}
	if next.TokenType == "" {
		next.TokenType = ts.TokenType
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		next.Scope = scope
	}
	return next
}

// Clone returns a copy of ts.
func (ts *TokenSet) Clone() *TokenSet {
	if ts == nil {
		return nil
	}
	c := *ts
	return &c
}

// View is the operator-facing form of a token set with secrets truncated.
type View struct {
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	RealmID      string     `json:"realm_id"`
	Scope        string     `json:"scope,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	IssuedAt     *time.Time `json:"issued_at,omitempty"`
	Version      int64      `json:"version"`
}

// Redacted returns the inspection view of ts.
func (ts *TokenSet) Redacted() *View {
	if ts == nil {
		return nil
	}
	v := &View{
		AccessToken:  redact(ts.AccessToken),
		RefreshToken: redact(ts.RefreshToken),
		RealmID:      ts.RealmID,
		Scope:        ts.Scope,
		TokenType:    ts.TokenType,
		Version:      ts.Version,
	}
	if !ts.ExpiresAt.IsZero() {
		t := ts.ExpiresAt
		v.ExpiresAt = &t
	}
	if !ts.IssuedAt.IsZero() {
		t := ts.IssuedAt
		v.IssuedAt = &t
	}
	return v
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > redactedPrefixLen {
		s = s[:redactedPrefixLen]
	}
	return s + "…"
}
