// Package server exposes the bridge over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/go-authgate/qbo-bridge/extract"
	"github.com/go-authgate/qbo-bridge/qbo"
	"github.com/go-authgate/qbo-bridge/tokens"
)

// Session is what the handlers need from *qbo.Session.
type Session interface {
	qbo.Doer
	Authorize(ctx context.Context, code, realmID, redirectURI string) (*tokens.TokenSet, error)
	Current(ctx context.Context) (*tokens.TokenSet, error)
}

// Authorizer builds consent URLs. *qbo.Exchanger implements it.
type Authorizer interface {
	AuthCodeURL(state string) string
	RedirectURI() string
}

// Extractor reads invoice documents. *extract.Client implements it.
type Extractor interface {
	Process(ctx context.Context, documentURL string) (extract.Response, error)
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Session    Session
	Authorizer Authorizer
	API        *qbo.API
	Vendors    *qbo.Vendors
	Bills      *qbo.Bills

	// Extractor is optional; without it /bills/process-pdf answers 503.
	Extractor Extractor
}

// Server holds the HTTP handlers.
type Server struct {
	deps   Deps
	states *stateStore
	logger *slog.Logger
	now    func() time.Time
}

// New builds a server.
func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		deps:   deps,
		states: newStateStore(stateTTL),
		logger: logger,
		now:    time.Now,
	}
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(requestLogger(s.logger), gin.Recovery())

	r.GET("/health", s.health)

	auth := r.Group("/auth")
	auth.GET("/start", s.authStart)
	auth.GET("/callback", s.authCallback)
	auth.GET("/tokens", s.authTokens)

	r.GET("/companyinfo", s.companyInfo)
	r.GET("/query", s.query)

	r.GET("/customers/search", s.search("Customer"))
	r.GET("/vendors/search", s.search("Vendor"))

	for _, e := range qbo.Entities {
		r.GET("/"+e.Plural, s.list(e))
		r.GET("/"+e.Plural+"/:id", s.getByID(e))
	}

	bills := r.Group("/bills")
	bills.POST("/from-ocr", s.billFromOCR)
	bills.POST("/process-pdf", s.billFromPDF)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": s.now().Unix()})
}

// requestLogger writes one slog line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", attrs...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}
