package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/go-authgate/qbo-bridge/qbo"
)

const (
	notAuthorizedDetail  = "Not authorized yet. Hit /auth/start first."
	vendorDetail         = "Could not resolve vendor in QuickBooks from vendor_name"
	accountsDetail       = "AP_ACCOUNT_ID or EXPENSE_ACCOUNT_ID is not set. Please set these as environment variables."
	extractionOffDetail  = "Document extraction is not configured. Set EXTRACT_URL and EXTRACT_API_KEY."
	internalErrorDetail  = "internal error"
	upstreamTimeoutLabel = "upstream request timed out"
)

// abortWithError maps err onto a status and a {"detail": ...} body.
// Provider errors keep the provider's status and payload.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		authErr    *qbo.UpstreamAuthError
		upErr      *qbo.UpstreamError
		timeoutErr *qbo.UpstreamTimeoutError
		status     int
		detail     any
	)

	switch {
	case errors.Is(err, qbo.ErrNotAuthorized):
		status, detail = http.StatusBadRequest, notAuthorizedDetail
	case errors.Is(err, qbo.ErrInvalidCallback):
		status, detail = http.StatusBadRequest, err.Error()
	case errors.Is(err, qbo.ErrInvalidInvoice):
		status, detail = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, qbo.ErrVendorNotResolved):
		status, detail = http.StatusBadRequest, vendorDetail
	case errors.Is(err, qbo.ErrAccountsNotConfigured):
		status, detail = http.StatusInternalServerError, accountsDetail
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		status, detail = http.StatusGatewayTimeout, upstreamTimeoutLabel
	case errors.As(err, &authErr):
		status, detail = authErr.StatusCode, authErr.Detail()
	case errors.As(err, &upErr):
		status, detail = upErr.StatusCode, upErr.Detail()
		if status < http.StatusBadRequest {
			// 2xx that did not parse
			status = http.StatusBadGateway
		}
	default:
		status, detail = http.StatusInternalServerError, internalErrorDetail
	}

	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
