package tui

import (
	"fmt"
	"io"
	"time"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all output from the authorize command.
type Displayer interface {
	Banner()
	TokensFound(realmID string, version int64)
	TokensNotFound()
	AuthURLReady(authURL, callback string, expiry time.Time)
	BrowserOpenFailed(err error)
	WaitingForCallback()
	CallbackReceived(realmID string)
	Exchanging()
	TokenSaved(location string)
	Verifying()
	VerifyOK(companyName string)
	VerifyFailed(err error)
	Done(realmID, preview, scope string, expiresIn time.Duration)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprintln(p.w, "=== QuickBooks Online Authorization ===")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) TokensFound(realmID string, version int64) {
	fmt.Fprintf(p.w, "Company %s is already authorized (version %d); it will be replaced.\n", realmID, version)
}

func (p *PlainDisplayer) TokensNotFound() {
	fmt.Fprintln(p.w, "No company authorized yet.")
}

func (p *PlainDisplayer) AuthURLReady(authURL, callback string, expiry time.Time) {
	fmt.Fprintln(p.w, "----------------------------------------")
	fmt.Fprintf(p.w, "Please open this link to authorize:\n%s\n", authURL)
	fmt.Fprintf(p.w, "\nListening for the redirect on %s\n", callback)
	fmt.Fprintf(p.w, "The link is valid until %s\n", expiry.Format(time.Kitchen))
	fmt.Fprintln(p.w, "----------------------------------------")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) BrowserOpenFailed(err error) {
	fmt.Fprintf(p.w, "Could not open a browser (%v); open the link manually.\n", err)
}

func (p *PlainDisplayer) WaitingForCallback() {
	fmt.Fprintln(p.w, "Waiting for authorization...")
}

func (p *PlainDisplayer) CallbackReceived(realmID string) {
	fmt.Fprintf(p.w, "Callback received for company %s\n", realmID)
}

func (p *PlainDisplayer) Exchanging() {
	fmt.Fprintln(p.w, "Exchanging authorization code...")
}

func (p *PlainDisplayer) TokenSaved(location string) {
	fmt.Fprintf(p.w, "Tokens saved to %s\n", location)
}

func (p *PlainDisplayer) Verifying() {
	fmt.Fprintln(p.w, "\nVerifying access...")
}

func (p *PlainDisplayer) VerifyOK(companyName string) {
	if companyName != "" {
		fmt.Fprintf(p.w, "Connected to: %s\n", companyName)
	}
	fmt.Fprintln(p.w, "Access verified successfully!")
}

func (p *PlainDisplayer) VerifyFailed(err error) {
	fmt.Fprintf(p.w, "Verification failed: %v\n", err)
}

func (p *PlainDisplayer) Done(realmID, preview, scope string, expiresIn time.Duration) {
	fmt.Fprintln(p.w, "\n========================================")
	fmt.Fprintln(p.w, "Authorized Company:")
	fmt.Fprintf(p.w, "Realm ID: %s\n", realmID)
	fmt.Fprintf(p.w, "Access Token: %s\n", preview)
	if scope != "" {
		fmt.Fprintf(p.w, "Scope: %s\n", scope)
	}
	fmt.Fprintf(p.w, "Expires In: %s\n", expiresIn.Round(time.Second))
	fmt.Fprintln(p.w, "========================================")
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner()                               {}
func (NoopDisplayer) TokensFound(_ string, _ int64)         {}
func (NoopDisplayer) TokensNotFound()                       {}
func (NoopDisplayer) AuthURLReady(_, _ string, _ time.Time) {}
func (NoopDisplayer) BrowserOpenFailed(_ error)             {}
func (NoopDisplayer) WaitingForCallback()                   {}
func (NoopDisplayer) CallbackReceived(_ string)             {}
func (NoopDisplayer) Exchanging()                           {}
func (NoopDisplayer) TokenSaved(_ string)                   {}
func (NoopDisplayer) Verifying()                            {}
func (NoopDisplayer) VerifyOK(_ string)                     {}
func (NoopDisplayer) VerifyFailed(_ error)                  {}
func (NoopDisplayer) Done(_, _, _ string, _ time.Duration)  {}
func (NoopDisplayer) Fatal(_ error)                         {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) TokensFound(realmID string, version int64) {
	t.p.Send(MsgTokensFound{RealmID: realmID, Version: version})
}

func (t *ProgramDisplayer) TokensNotFound() {
	t.p.Send(MsgTokensNotFound{})
}

func (t *ProgramDisplayer) AuthURLReady(authURL, callback string, expiry time.Time) {
	t.p.Send(MsgAuthURLReady{AuthURL: authURL, Callback: callback, Expiry: expiry})
}

func (t *ProgramDisplayer) BrowserOpenFailed(err error) {
	t.p.Send(MsgBrowserOpenFailed{Err: err})
}

func (t *ProgramDisplayer) WaitingForCallback() {
	t.p.Send(MsgWaitingForCallback{})
}

func (t *ProgramDisplayer) CallbackReceived(realmID string) {
	t.p.Send(MsgCallbackReceived{RealmID: realmID})
}

func (t *ProgramDisplayer) Exchanging() {
	t.p.Send(MsgExchanging{})
}

func (t *ProgramDisplayer) TokenSaved(location string) {
	t.p.Send(MsgTokenSaved{Location: location})
}

func (t *ProgramDisplayer) Verifying() {
	t.p.Send(MsgVerifying{})
}

func (t *ProgramDisplayer) VerifyOK(companyName string) {
	t.p.Send(MsgVerifyOK{CompanyName: companyName})
}

func (t *ProgramDisplayer) VerifyFailed(err error) {
	t.p.Send(MsgVerifyFailed{Err: err})
}

func (t *ProgramDisplayer) Done(realmID, preview, scope string, expiresIn time.Duration) {
	t.p.Send(MsgDone{RealmID: realmID, Preview: preview, Scope: scope, ExpiresIn: expiresIn})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
