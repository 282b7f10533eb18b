package qbo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
)

const (
	// DefaultMinorVersion is the API minor version sent with every call.
	DefaultMinorVersion = "75"

	maxAPIResponse = 10 << 20
)

// APIConfig points the API client at an accounting host.
type APIConfig struct {
	BaseURL      string
	MinorVersion string
	Timeout      time.Duration
}

// API builds request functions for the accounting REST API. Reads go
// through the retrying client; writes use the plain one so a create is
// never sent twice.
type API struct {
	baseURL      string
	minorVersion string
	timeout      time.Duration
	reads        *retry.Client
	writes       *http.Client
}

// NewAPI returns an API client. reads may be nil, in which case reads
// are sent through writes without retries.
func NewAPI(cfg APIConfig, reads *retry.Client, writes *http.Client) *API {
	if cfg.MinorVersion == "" {
		cfg.MinorVersion = DefaultMinorVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if writes == nil {
		writes = http.DefaultClient
	}
	return &API{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		minorVersion: cfg.MinorVersion,
		timeout:      cfg.Timeout,
		reads:        reads,
		writes:       writes,
	}
}

// Query runs a query-language statement.
func (a *API) Query(statement string) RequestFunc {
	return func(ctx context.Context, accessToken, realmID string) (*http.Response, error) {
		params := url.Values{
			"query":        {statement},
			"minorversion": {a.minorVersion},
		}
		req, cancel, err := a.newRequest(ctx, http.MethodGet, realmID, "query", params, nil)
		if err != nil {
			return nil, err
		}
		// the query endpoint wants a text content type even on GET
		req.Header.Set("Content-Type", "application/text")
		return a.send(req, accessToken, cancel)
	}
}

// GetByID reads one entity.
func (a *API) GetByID(resource, id string) RequestFunc {
	return func(ctx context.Context, accessToken, realmID string) (*http.Response, error) {
		params := url.Values{"minorversion": {a.minorVersion}}
		req, cancel, err := a.newRequest(ctx, http.MethodGet, realmID,
			resource+"/"+url.PathEscape(id), params, nil)
		if err != nil {
			return nil, err
		}
		return a.send(req, accessToken, cancel)
	}
}

// CompanyInfo reads the connected company's profile.
func (a *API) CompanyInfo() RequestFunc {
	return func(ctx context.Context, accessToken, realmID string) (*http.Response, error) {
		params := url.Values{"minorversion": {a.minorVersion}}
		req, cancel, err := a.newRequest(ctx, http.MethodGet, realmID,
			"companyinfo/"+url.PathEscape(realmID), params, nil)
		if err != nil {
			return nil, err
		}
		return a.send(req, accessToken, cancel)
	}
}

// Create posts a new entity. The body is encoded once so a retried call
// sends the same bytes.
func (a *API) Create(resource string, body any) RequestFunc {
	payload, encErr := json.Marshal(body)
	return func(ctx context.Context, accessToken, realmID string) (*http.Response, error) {
		if encErr != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", resource, encErr)
		}
		params := url.Values{"minorversion": {a.minorVersion}}
		req, cancel, err := a.newRequest(ctx, http.MethodPost, realmID, resource, params, payload)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return a.send(req, accessToken, cancel)
	}
}

func (a *API) newRequest(
	ctx context.Context,
	method, realmID, path string,
	params url.Values,
	body []byte,
) (*http.Request, context.CancelFunc, error) {
	endpoint := fmt.Sprintf("%s/v3/company/%s/%s?%s",
		a.baseURL, url.PathEscape(realmID), path, params.Encode())

	ctx, cancel := context.WithTimeout(ctx, a.timeout)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, cancel, nil
}

func (a *API) send(req *http.Request, accessToken string, cancel context.CancelFunc) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var (
		resp *http.Response
		err  error
	)
	if req.Method == http.MethodGet && a.reads != nil {
		resp, err = a.reads.DoWithContext(req.Context(), req)
	} else {
		resp, err = a.writes.Do(req)
	}
	if err != nil {
		cancel()
		return nil, WrapTransportError("api "+req.Method, err)
	}

	// the deadline covers reading the body too
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// DecodeResponse reads and closes resp. A non-2xx status or a body that is
// not JSON comes back as *UpstreamError carrying the body verbatim. v may be
// nil when only the status matters.
func DecodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponse))
	if err != nil {
		return WrapTransportError("api read", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{StatusCode: resp.StatusCode, Body: body}
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &UpstreamError{StatusCode: resp.StatusCode, Body: body, Err: err}
	}
	return nil
}
