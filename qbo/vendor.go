package qbo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Doer runs a request function with stored credentials. *Session is the
// production implementation.
type Doer interface {
	Do(ctx context.Context, fn RequestFunc) (*http.Response, error)
}

// Vendor is the part of the provider's Vendor entity the bridge reads.
type Vendor struct {
	ID          string `json:"Id"`
	DisplayName string `json:"DisplayName"`
	SyncToken   string `json:"SyncToken,omitempty"`
	Active      bool   `json:"Active,omitempty"`
}

// Vendors looks vendors up by display name and creates missing ones.
type Vendors struct {
	doer   Doer
	api    *API
	logger *slog.Logger
}

// NewVendors returns a vendor helper.
func NewVendors(doer Doer, api *API, logger *slog.Logger) *Vendors {
	if logger == nil {
		logger = slog.Default()
	}
	return &Vendors{doer: doer, api: api, logger: logger}
}

// Resolve returns the id of the vendor whose DisplayName equals name.
//
// "" with a nil error means not found. A failed query other than an
// authorization failure also yields "" and is only logged; missing
// credentials, refresh failures, timeouts and transport errors are
// returned.
func (v *Vendors) Resolve(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}

	stmt := Select("Vendor").Where(Eq("DisplayName", name)).Page(1, 1).String()
	resp, err := v.doer.Do(ctx, v.api.Query(stmt))
	if err != nil {
		return "", err
	}

	var out struct {
		QueryResponse struct {
			Vendor []Vendor `json:"Vendor"`
		} `json:"QueryResponse"`
	}
	if err := DecodeResponse(resp, &out); err != nil {
		var ue *UpstreamError
		if !errors.As(err, &ue) || isAuthStatus(ue.StatusCode) {
			return "", err
		}
		v.logger.Warn("vendor lookup failed, treating as not found",
			"vendor", name,
			"status", ue.StatusCode,
			"error", err)
		return "", nil
	}

	if len(out.QueryResponse.Vendor) == 0 {
		v.logger.Debug("vendor not found", "vendor", name)
		return "", nil
	}
	return out.QueryResponse.Vendor[0].ID, nil
}

// Create adds a vendor with the given display name and returns its id.
func (v *Vendors) Create(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("vendor name is required to create a vendor")
	}

	resp, err := v.doer.Do(ctx, v.api.Create("vendor", map[string]string{"DisplayName": name}))
	if err != nil {
		return "", err
	}

	var out struct {
		Vendor Vendor `json:"Vendor"`
	}
	if err := DecodeResponse(resp, &out); err != nil {
		return "", fmt.Errorf("failed to create vendor: %w", err)
	}
	if out.Vendor.ID == "" {
		return "", errors.New("vendor created but no id returned")
	}

	v.logger.Info("vendor created", "vendor", name, "vendor_id", out.Vendor.ID)
	return out.Vendor.ID, nil
}

// Ensure resolves name and, when create is set and nothing matches,
// creates the vendor. created reports whether a new vendor was made.
func (v *Vendors) Ensure(ctx context.Context, name string, create bool) (id string, created bool, err error) {
	id, err = v.Resolve(ctx, name)
	if err != nil || id != "" || !create || strings.TrimSpace(name) == "" {
		return id, false, err
	}
	id, err = v.Create(ctx, name)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
