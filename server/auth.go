package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/go-authgate/qbo-bridge/qbo"
)

func (s *Server) authStart(c *gin.Context) {
	state := s.states.issue(s.now())
	c.Redirect(http.StatusTemporaryRedirect, s.deps.Authorizer.AuthCodeURL(state))
}

type callbackQuery struct {
	Code    string `form:"code"`
	RealmID string `form:"realmId"`
	State   string `form:"state"`
	Error   string `form:"error"`
}

func (s *Server) authCallback(c *gin.Context) {
	var q callbackQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	if q.Error != "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "authorization denied: " + q.Error})
		return
	}

	switch {
	case q.State == "":
		s.logger.Warn("authorization callback without state")
	case !s.states.consume(q.State, s.now()):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "unknown or expired state; restart at /auth/start"})
		return
	}

	ts, err := s.deps.Session.Authorize(c.Request.Context(), q.Code, q.RealmID, s.deps.Authorizer.RedirectURI())
	if err != nil {
		abortWithError(c, err)
		return
	}

	var scopes any
	if ts.Scope != "" {
		scopes = ts.Scope
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Authorization successful",
		"realm_id": ts.RealmID,
		"scopes":   scopes,
	})
}

func (s *Server) authTokens(c *gin.Context) {
	ts, err := s.deps.Session.Current(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	if ts == nil {
		c.JSON(http.StatusOK, gin.H{"tokens": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": ts.Redacted()})
}

// proxy runs fn through the session and relays the provider's JSON.
func (s *Server) proxy(c *gin.Context, fn qbo.RequestFunc) {
	resp, err := s.deps.Session.Do(c.Request.Context(), fn)
	if err != nil {
		abortWithError(c, err)
		return
	}

	var raw json.RawMessage
	if err := qbo.DecodeResponse(resp, &raw); err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}
