package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-authgate/qbo-bridge/qbo"
	"github.com/go-authgate/qbo-bridge/tui"
)

// callbackTimeout is how long the operator has to approve the connection.
const callbackTimeout = 10 * time.Minute

const callbackVerifyTimeout = 30 * time.Second

var callbackPage = template.Must(template.New("callback").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>QuickBooks authorization</title></head>
<body style="font-family: sans-serif; margin: 3em">
{{if .Error}}<h2>Authorization failed</h2><p>{{.Error}}{{if .Description}}: {{.Description}}{{end}}</p>
{{else}}<h2>Authorization received</h2><p>You can close this window and return to the terminal.</p>{{end}}
</body></html>`))

// callbackResult is what the provider sent to the redirect URI.
type callbackResult struct {
	Code             string
	State            string
	RealmID          string
	Error            string
	ErrorDescription string
}

// callbackServer is a temporary local HTTP server that receives a single
// authorization redirect and then shuts down.
type callbackServer struct {
	redirect *url.URL
	server   *http.Server
	listener net.Listener
	resultCh chan *callbackResult
	errorCh  chan error
	once     sync.Once
	url      string
}

func newCallbackServer(redirectURI string) (*callbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect URI %s must be plain http on this machine to receive the callback", redirectURI)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return &callbackServer{
		redirect: u,
		resultCh: make(chan *callbackResult, 1),
		errorCh:  make(chan error, 1),
	}, nil
}

// start listens on the redirect URI's host and port. It returns the URL the
// listener actually answers on, which differs from the redirect URI only
// when the configured port is 0.
func (s *callbackServer) start(ctx context.Context) (string, error) {
	host := s.redirect.Host
	if s.redirect.Port() == "" {
		host = net.JoinHostPort(s.redirect.Hostname(), "80")
	}

	listener, err := net.Listen("tcp", host)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", host, err)
	}
	s.listener = listener

	port := listener.Addr().(*net.TCPAddr).Port
	u := *s.redirect
	u.Host = net.JoinHostPort(s.redirect.Hostname(), fmt.Sprint(port))
	s.url = u.String()

	mux := http.NewServeMux()
	mux.HandleFunc(s.redirect.Path, s.handleCallback)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	return s.url, nil
}

func (s *callbackServer) wait(ctx context.Context) (*callbackResult, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *callbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *callbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	q := r.URL.Query()
	result := &callbackResult{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		RealmID:          q.Get("realmId"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := callbackPage.Execute(w, map[string]string{
		"Error":       result.Error,
		"Description": result.ErrorDescription,
	}); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}

	select {
	case s.resultCh <- result:
	default:
	}

	// give the response time to flush
	go func() {
		time.Sleep(time.Second)
		s.stop()
	}()
}

func (s *callbackServer) stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

type authorizeOptions struct {
	openBrowser bool
	timeout     time.Duration
}

// runAuthorize performs the authorization-code flow from the terminal:
// consent URL, local callback, code exchange, persistence and a
// company-info check through the session.
func runAuthorize(ctx context.Context, a *app, d tui.Displayer, opts authorizeOptions) (err error) {
	defer func() {
		if err != nil {
			d.Fatal(err)
		}
	}()

	if opts.timeout <= 0 {
		opts.timeout = callbackTimeout
	}

	existing, err := a.session.Current(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stored tokens: %w", err)
	}
	if existing.Usable() {
		d.TokensFound(existing.RealmID, existing.Version)
	} else {
		d.TokensNotFound()
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	cs, err := newCallbackServer(a.cfg.RedirectURI)
	if err != nil {
		return err
	}
	callbackURL, err := cs.start(waitCtx)
	if err != nil {
		return err
	}
	defer cs.stop()

	state := uuid.NewString()
	authURL := a.exchanger.AuthCodeURL(state)
	d.AuthURLReady(authURL, callbackURL, time.Now().Add(opts.timeout))

	if opts.openBrowser {
		if err := openBrowser(authURL); err != nil {
			d.BrowserOpenFailed(err)
		}
	}

	d.WaitingForCallback()
	result, err := cs.wait(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("no authorization received within %s", opts.timeout)
		}
		return err
	}

	if result.Error != "" {
		if result.ErrorDescription != "" {
			return fmt.Errorf("authorization denied: %s: %s", result.Error, result.ErrorDescription)
		}
		return fmt.Errorf("authorization denied: %s", result.Error)
	}
	if result.State != state {
		return errors.New("state mismatch in authorization callback")
	}

	d.CallbackReceived(result.RealmID)
	d.Exchanging()
	ts, err := a.session.Authorize(ctx, result.Code, result.RealmID, a.cfg.RedirectURI)
	if err != nil {
		return err
	}
	d.TokenSaved(a.cfg.storeLocation())

	d.Verifying()
	if name, err := verifyCompany(ctx, a); err != nil {
		d.VerifyFailed(err)
	} else {
		d.VerifyOK(name)
	}

	var expiresIn time.Duration
	if !ts.ExpiresAt.IsZero() {
		expiresIn = time.Until(ts.ExpiresAt)
	}
	d.Done(ts.RealmID, ts.Redacted().AccessToken, ts.Scope, expiresIn)
	return nil
}

// verifyCompany reads the company profile with the stored credentials.
func verifyCompany(ctx context.Context, a *app) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callbackVerifyTimeout)
	defer cancel()

	resp, err := a.session.Do(ctx, a.api.CompanyInfo())
	if err != nil {
		return "", err
	}

	var out struct {
		CompanyInfo struct {
			CompanyName string `json:"CompanyName"`
		} `json:"CompanyInfo"`
	}
	if err := qbo.DecodeResponse(resp, &out); err != nil {
		return "", err
	}
	return out.CompanyInfo.CompanyName, nil
}

// openBrowser opens target in the default web browser without waiting for it.
func openBrowser(target string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", target)
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", target)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
