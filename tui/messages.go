package tui

import (
	"time"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgTokensFound signals that a token set is already stored and will be replaced.
type MsgTokensFound struct {
	RealmID string
	Version int64
}

// MsgTokensNotFound signals that no company has been authorized yet.
type MsgTokensNotFound struct{}

// MsgAuthURLReady signals that the consent URL is ready for the operator.
type MsgAuthURLReady struct {
	AuthURL  string
	Callback string
	Expiry   time.Time
}

// MsgBrowserOpenFailed signals that the browser could not be launched.
type MsgBrowserOpenFailed struct{ Err error }

// MsgWaitingForCallback signals that the local listener is waiting for the redirect.
type MsgWaitingForCallback struct{}

// MsgCallbackReceived signals that the provider redirected back.
type MsgCallbackReceived struct{ RealmID string }

// MsgExchanging signals that the authorization code is being exchanged.
type MsgExchanging struct{}

// MsgTokenSaved signals that the token set was persisted.
type MsgTokenSaved struct{ Location string }

// MsgVerifying signals that the new credentials are being tried against the API.
type MsgVerifying struct{}

// MsgVerifyOK signals that the company-info call succeeded.
type MsgVerifyOK struct{ CompanyName string }

// MsgVerifyFailed signals that the company-info call failed.
type MsgVerifyFailed struct{ Err error }

// MsgDone signals successful completion of the authorization.
type MsgDone struct {
	RealmID   string
	Preview   string
	Scope     string
	ExpiresIn time.Duration
}

// MsgFatal signals a fatal error that should terminate the flow.
type MsgFatal struct{ Err error }
