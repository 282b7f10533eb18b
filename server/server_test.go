package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/go-authgate/qbo-bridge/extract"
	"github.com/go-authgate/qbo-bridge/qbo"
	"github.com/go-authgate/qbo-bridge/tokens"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGrants struct {
	mu        sync.Mutex
	refreshed []string
	exchanged []string
}

func (g *stubGrants) ExchangeCode(_ context.Context, code, _ string) (*oauth2.Token, error) {
	g.mu.Lock()
	g.exchanged = append(g.exchanged, code)
	g.mu.Unlock()
	tok := &oauth2.Token{AccessToken: "AT1", RefreshToken: "RT1", TokenType: "bearer", ExpiresIn: 3600}
	return tok.WithExtra(map[string]any{"scope": "com.intuit.quickbooks.accounting"}), nil
}

func (g *stubGrants) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	g.mu.Lock()
	g.refreshed = append(g.refreshed, refreshToken)
	g.mu.Unlock()
	return &oauth2.Token{AccessToken: "AT2", RefreshToken: "RT2", TokenType: "bearer", ExpiresIn: 3600}, nil
}

type stubAuthorizer struct{}

func (stubAuthorizer) AuthCodeURL(state string) string {
	return "https://appcenter.example/connect?state=" + url.QueryEscape(state)
}

func (stubAuthorizer) RedirectURI() string { return "http://localhost:8000/auth/callback" }

type stubExtractor struct {
	resp extract.Response
	err  error
	urls []string
}

func (e *stubExtractor) Process(_ context.Context, documentURL string) (extract.Response, error) {
	e.urls = append(e.urls, documentURL)
	return e.resp, e.err
}

type upstreamCall struct {
	method string
	path   string
	query  string
	auth   string
	body   string
}

type fixture struct {
	handler http.Handler
	store   *tokens.MemoryStore
	grants  *stubGrants

	mu    sync.Mutex
	calls []upstreamCall
}

func (f *fixture) upstreamCalls() []upstreamCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upstreamCall(nil), f.calls...)
}

type fixtureOptions struct {
	upstream  http.HandlerFunc
	bills     qbo.BillsConfig
	extractor Extractor
	seed      bool
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	f := &fixture{store: tokens.NewMemoryStore(), grants: &stubGrants{}}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.calls = append(f.calls, upstreamCall{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query().Get("query"),
			auth:   r.Header.Get("Authorization"),
			body:   string(body),
		})
		f.mu.Unlock()
		if opts.upstream == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		opts.upstream(w, r)
	}))
	t.Cleanup(upstream.Close)

	if opts.seed {
		require.NoError(t, f.store.Save(context.Background(), &tokens.TokenSet{
			AccessToken:  "AT1",
			RefreshToken: "RT1",
			RealmID:      "9991",
			TokenType:    "bearer",
			Version:      1,
		}))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	session := qbo.NewSession(f.store, f.grants, qbo.WithSessionLogger(logger))
	api := qbo.NewAPI(qbo.APIConfig{BaseURL: upstream.URL, Timeout: 5 * time.Second}, nil, upstream.Client())
	vendors := qbo.NewVendors(session, api, logger)

	srv := New(Deps{
		Session:    session,
		Authorizer: stubAuthorizer{},
		API:        api,
		Vendors:    vendors,
		Bills:      qbo.NewBills(session, api, vendors, opts.bills, logger),
		Extractor:  opts.extractor,
	}, logger)
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

var testAccounts = qbo.BillsConfig{APAccountID: "33", ExpenseAccountID: "7"}

func TestHealth(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestAuthFlow(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(t, http.MethodGet, "/auth/start", "")
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	w = f.do(t, http.MethodGet, "/auth/callback?code=C1&realmId=9991&state="+state, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "Authorization successful", body["message"])
	assert.Equal(t, "9991", body["realm_id"])
	assert.Equal(t, "com.intuit.quickbooks.accounting", body["scopes"])
	assert.Equal(t, []string{"C1"}, f.grants.exchanged)

	ts, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AT1", ts.AccessToken)
	assert.Equal(t, "RT1", ts.RefreshToken)

	// states are single use
	w = f.do(t, http.MethodGet, "/auth/callback?code=C2&realmId=9991&state="+state, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthCallback(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"unknown state", "/auth/callback?code=C1&realmId=9991&state=forged", http.StatusBadRequest},
		{"missing code", "/auth/callback?realmId=9991", http.StatusBadRequest},
		{"missing realm", "/auth/callback?code=C1", http.StatusBadRequest},
		{"provider denied", "/auth/callback?error=access_denied", http.StatusBadRequest},
		{"no state", "/auth/callback?code=C1&realmId=9991", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{})
			w := f.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				assert.Contains(t, decode(t, w), "detail")
				assert.Empty(t, f.grants.exchanged)
			}
		})
	}
}

func TestAuthTokens(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(t, http.MethodGet, "/auth/tokens", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tokens":null}`, w.Body.String())

	require.NoError(t, f.store.Save(context.Background(), &tokens.TokenSet{
		AccessToken:  "eyJhbGciOiJkaXIiLCJlbmMiOiJBMTI4Q0JDLUhTMjU2In0",
		RefreshToken: "AB11700000000000000000000000000000",
		RealmID:      "9991",
		Version:      3,
	}))

	w = f.do(t, http.MethodGet, "/auth/tokens", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "eyJhbGciOiJkaXIiLCJlbmMiOiJBMTI4Q0JDLUhTMjU2In0")

	var out struct {
		Tokens tokens.View `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "eyJhbGciOiJkaXIi…", out.Tokens.AccessToken)
	assert.Equal(t, "9991", out.Tokens.RealmID)
	assert.Equal(t, int64(3), out.Tokens.Version)
}

func TestNotAuthorized(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	for _, target := range []string{"/companyinfo", "/customers", "/vendors/search?name=x", "/query?sql=select"} {
		w := f.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Equal(t, notAuthorizedDetail, decode(t, w)["detail"], target)
	}
	assert.Empty(t, f.upstreamCalls())
}

func TestCompanyInfo(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		seed: true,
		upstream: func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `{"CompanyInfo":{"CompanyName":"Sandbox Co"}}`)
		},
	})

	w := f.do(t, http.MethodGet, "/companyinfo", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"CompanyInfo":{"CompanyName":"Sandbox Co"}}`, w.Body.String())

	calls := f.upstreamCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/v3/company/9991/companyinfo/9991", calls[0].path)
	assert.Equal(t, "Bearer AT1", calls[0].auth)
}

func TestProxy_RefreshesOnce(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		seed: true,
		upstream: func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer AT2" {
				writeJSON(w, http.StatusUnauthorized, `{"fault":"expired"}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"CompanyInfo":{}}`)
		},
	})

	w := f.do(t, http.MethodGet, "/companyinfo", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"RT1"}, f.grants.refreshed)

	calls := f.upstreamCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "Bearer AT1", calls[0].auth)
	assert.Equal(t, "Bearer AT2", calls[1].auth)

	ts, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RT2", ts.RefreshToken)
	assert.Equal(t, "9991", ts.RealmID)
}

func TestProxy_RelaysProviderErrors(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		seed: true,
		upstream: func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusBadRequest, `{"Fault":{"type":"ValidationFault"}}`)
		},
	})

	w := f.do(t, http.MethodGet, "/invoices/12", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"detail":{"Fault":{"type":"ValidationFault"}}}`, w.Body.String())
}

func TestProxy_NonJSONSuccessIsBadGateway(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		seed: true,
		upstream: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "<html>maintenance</html>")
		},
	})

	w := f.do(t, http.MethodGet, "/companyinfo", "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "<html>maintenance</html>", decode(t, w)["detail"])
}

func TestQuery(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		seed: true,
		upstream: func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `{"QueryResponse":{}}`)
		},
	})

	w := f.do(t, http.MethodGet, "/query", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodGet, "/query?sql="+url.QueryEscape("select * from Item"), "")
	require.Equal(t, http.StatusOK, w.Code)

	calls := f.upstreamCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "select * from Item", calls[0].query)
}

func TestList(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		seed: true,
		upstream: func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `{"QueryResponse":{"Invoice":[]}}`)
		},
	})

	w := f.do(t, http.MethodGet, "/customers", "")
	require.Equal(t, http.StatusOK, w.Code)

	params := url.Values{
		"where":   {"TotalAmt > '100'"},
		"orderby": {"TxnDate DESC"},
		"start":   {"2"},
		"max":     {"10"},
	}
	w = f.do(t, http.MethodGet, "/invoices?"+params.Encode(), "")
	require.Equal(t, http.StatusOK, w.Code)

	calls := f.upstreamCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/v3/company/9991/query", calls[0].path)
	assert.Equal(t, "select * from Customer startposition 1 maxresults 100", calls[0].query)
	assert.Equal(t,
		"select * from Invoice where TotalAmt > '100' orderby TxnDate DESC startposition 2 maxresults 10",
		calls[1].query)
}

func TestList_RejectsBadPaging(t *testing.T) {
	f := newFixture(t, fixtureOptions{seed: true})

	for _, q := range []string{"max=0", "max=1001", "start=0", "max=abc"} {
		w := f.do(t, http.MethodGet, "/items?"+q, "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, q)
	}
	assert.Empty(t, f.upstreamCalls())
}

func TestGetByID(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		seed: true,
		upstream: func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `{"CreditMemo":{"Id":"42"}}`)
		},
	})

	w := f.do(t, http.MethodGet, "/credit_memos/42", "")

	require.Equal(t, http.StatusOK, w.Code)
	calls := f.upstreamCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/v3/company/9991/creditmemo/42", calls[0].path)
}

func TestSearch(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		seed: true,
		upstream: func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, `{"QueryResponse":{}}`)
		},
	})

	tests := []struct {
		target string
		query  string
	}{
		{
			"/vendors/search?name=" + url.QueryEscape("O'Brien Supply"),
			`select * from Vendor where DisplayName = 'O\'Brien Supply' startposition 1 maxresults 1`,
		},
		{
			"/customers/search?name=Acme&prefix=true&max=5",
			`select * from Customer where DisplayName like 'Acme%' startposition 1 maxresults 5`,
		},
		{
			"/customers/search?email=" + url.QueryEscape("ap@acme.test") + "&phone=555",
			`select * from Customer where PrimaryEmailAddr.Address = 'ap@acme.test' and PrimaryPhone.FreeFormNumber = '555' startposition 1 maxresults 1`,
		},
	}

	for i, tt := range tests {
		w := f.do(t, http.MethodGet, tt.target, "")
		require.Equal(t, http.StatusOK, w.Code, tt.target)
		calls := f.upstreamCalls()
		require.Len(t, calls, i+1)
		assert.Equal(t, tt.query, calls[i].query)
	}
}

// accountingStub answers vendor lookups, vendor creates and bill creates.
func accountingStub(vendorID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/query"):
			if vendorID == "" {
				writeJSON(w, http.StatusOK, `{"QueryResponse":{}}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"QueryResponse":{"Vendor":[{"Id":"`+vendorID+`","DisplayName":"Acme"}]}}`)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/vendor"):
			writeJSON(w, http.StatusOK, `{"Vendor":{"Id":"77","DisplayName":"Acme"}}`)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/bill"):
			writeJSON(w, http.StatusOK, `{"Bill":{"Id":"145","TotalAmt":120}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

const ocrInvoice = `{
	"vendor_name": "Acme",
	"invoice_number": "INV-1",
	"invoice_date": "2025-03-01",
	"line_items": [{"description": "Widgets", "quantity": 2, "unit_price": 60, "amount": 120}],
	"subtotal": 120,
	"total": 120
}`

func TestBillFromOCR(t *testing.T) {
	f := newFixture(t, fixtureOptions{seed: true, bills: testAccounts, upstream: accountingStub("56")})

	w := f.do(t, http.MethodPost, "/bills/from-ocr", ocrInvoice)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out qbo.InvoiceProcessed
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "bill_created", out.Status)
	assert.Equal(t, "56", out.VendorID)
	assert.False(t, out.VendorCreated)
	assert.Equal(t, "145", out.BillID)
	assert.Equal(t, "https://app.qbo.intuit.com/app/bill?txnId=145", out.Link)
	assert.NotEmpty(t, out.InternalInvoiceID)

	calls := f.upstreamCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/v3/company/9991/bill", calls[1].path)

	var bill qbo.Bill
	require.NoError(t, json.Unmarshal([]byte(calls[1].body), &bill))
	assert.Equal(t, "56", bill.VendorRef.Value)
	require.Len(t, bill.Line, 1)
	assert.InDelta(t, 120, bill.Line[0].Amount, 0.001)
}

func TestBillFromOCR_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		vendor string
		bills  qbo.BillsConfig
		status int
		detail string
	}{
		{
			name:   "unknown vendor",
			body:   ocrInvoice,
			bills:  testAccounts,
			status: http.StatusBadRequest,
			detail: vendorDetail,
		},
		{
			name:   "accounts missing",
			body:   ocrInvoice,
			vendor: "56",
			status: http.StatusInternalServerError,
			detail: accountsDetail,
		},
		{
			name:   "negative quantity",
			body:   `{"vendor_name":"Acme","line_items":[{"quantity":-1,"unit_price":1,"amount":1}]}`,
			vendor: "56",
			bills:  testAccounts,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "bad date",
			body:   `{"vendor_name":"Acme","invoice_date":"03/01/2025","total":5}`,
			vendor: "56",
			bills:  testAccounts,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "not json",
			body:   `{"vendor_name":`,
			status: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{seed: true, bills: tt.bills, upstream: accountingStub(tt.vendor)})

			w := f.do(t, http.MethodPost, "/bills/from-ocr", tt.body)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.detail != "" {
				assert.Equal(t, tt.detail, decode(t, w)["detail"])
			}
			for _, c := range f.upstreamCalls() {
				assert.NotEqual(t, "/v3/company/9991/bill", c.path, "no bill may be created")
			}
		})
	}
}

func TestBillFromPDF(t *testing.T) {
	ex := &stubExtractor{resp: extract.Response{
		"structured_data": map[string]any{
			"vendor_name": "Acme",
			"total":       "120.00",
			"date":        "2025-03-01",
		},
	}}
	f := newFixture(t, fixtureOptions{seed: true, bills: testAccounts, upstream: accountingStub(""), extractor: ex})

	w := f.do(t, http.MethodPost, "/bills/process-pdf", `{"pdfUrl":"https://files.example/inv.pdf"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"https://files.example/inv.pdf"}, ex.urls)

	body := decode(t, w)
	assert.Equal(t, "77", body["vendor_id"])
	assert.Equal(t, true, body["vendor_created"])
	assert.Equal(t, "145", body["quickbooks_bill_id"])

	inv, ok := body["invoice"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://files.example/inv.pdf", inv["file_url"])
	assert.Equal(t, "2025-03-01", inv["invoice_date"])

	var paths []string
	for _, c := range f.upstreamCalls() {
		paths = append(paths, c.method+" "+c.path)
	}
	assert.Equal(t, []string{
		"GET /v3/company/9991/query",
		"POST /v3/company/9991/vendor",
		"POST /v3/company/9991/bill",
	}, paths)
}

func TestBillFromPDF_Errors(t *testing.T) {
	t.Run("extraction disabled", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{seed: true})
		w := f.do(t, http.MethodPost, "/bills/process-pdf", `{"pdf_url":"https://files.example/a.pdf"}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, extractionOffDetail, decode(t, w)["detail"])
	})

	t.Run("missing url", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{seed: true, extractor: &stubExtractor{}})
		w := f.do(t, http.MethodPost, "/bills/process-pdf", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no vendor extracted", func(t *testing.T) {
		ex := &stubExtractor{resp: extract.Response{"total": 10}}
		f := newFixture(t, fixtureOptions{seed: true, bills: testAccounts, extractor: ex})
		w := f.do(t, http.MethodPost, "/bills/process-pdf", `{"url":"https://files.example/a.pdf"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, decode(t, w), "invoice")
		assert.Empty(t, f.upstreamCalls())
	})

	t.Run("extraction timeout", func(t *testing.T) {
		ex := &stubExtractor{err: &qbo.UpstreamTimeoutError{Op: "extract", Err: context.DeadlineExceeded}}
		f := newFixture(t, fixtureOptions{seed: true, extractor: ex})
		w := f.do(t, http.MethodPost, "/bills/process-pdf", `{"url":"https://files.example/a.pdf"}`)
		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	})

	t.Run("extraction failure", func(t *testing.T) {
		ex := &stubExtractor{err: &qbo.UpstreamError{StatusCode: http.StatusBadGateway, Body: []byte(`{"error":"agent down"}`)}}
		f := newFixture(t, fixtureOptions{seed: true, extractor: ex})
		w := f.do(t, http.MethodPost, "/bills/process-pdf", `{"url":"https://files.example/a.pdf"}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.JSONEq(t, `{"detail":{"error":"agent down"}}`, w.Body.String())
	})
}

func TestAbortWithError_Unknown(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	abortWithError(c, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"internal error"}`, w.Body.String())
}

func TestStateStore(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newStateStore(time.Minute)

	a := s.issue(now)
	b := s.issue(now)
	assert.NotEqual(t, a, b)

	assert.True(t, s.consume(a, now.Add(30*time.Second)))
	assert.False(t, s.consume(a, now.Add(30*time.Second)))
	assert.False(t, s.consume(b, now.Add(2*time.Minute)))
	assert.False(t, s.consume("never-issued", now))
}
