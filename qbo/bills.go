package qbo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

var (
	// ErrVendorNotResolved means the invoice's vendor does not exist.
	ErrVendorNotResolved = errors.New("could not resolve vendor in QuickBooks from vendor_name")

	// ErrAccountsNotConfigured means the AP or expense account id is unset.
	ErrAccountsNotConfigured = errors.New("AP_ACCOUNT_ID or EXPENSE_ACCOUNT_ID is not set")
)

// BillsConfig holds the accounts bills are booked against.
type BillsConfig struct {
	APAccountID      string
	ExpenseAccountID string
	Sandbox          bool
}

// InvoiceProcessed is the outcome of turning an invoice into a bill.
type InvoiceProcessed struct {
	Status            string         `json:"status"`
	InternalInvoiceID string         `json:"internal_invoice_id"`
	VendorName        string         `json:"vendor_name"`
	VendorID          string         `json:"vendor_id,omitempty"`
	VendorCreated     bool           `json:"vendor_created,omitempty"`
	Total             float64        `json:"total"`
	BillID            string         `json:"quickbooks_bill_id,omitempty"`
	Link              string         `json:"quickbooks_link,omitempty"`
	RawResponse       map[string]any `json:"quickbooks_raw_response,omitempty"`
}

// Bills creates bills from invoices.
type Bills struct {
	doer    Doer
	api     *API
	vendors *Vendors
	cfg     BillsConfig
	logger  *slog.Logger
}

// NewBills returns a bill creator.
func NewBills(doer Doer, api *API, vendors *Vendors, cfg BillsConfig, logger *slog.Logger) *Bills {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bills{doer: doer, api: api, vendors: vendors, cfg: cfg, logger: logger}
}

// FromInvoice resolves the vendor, builds the bill and creates it. With
// createVendor set an unknown vendor is created instead of rejected.
func (b *Bills) FromInvoice(ctx context.Context, inv *InvoiceIn, createVendor bool) (*InvoiceProcessed, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	vendorID, created, err := b.vendors.Ensure(ctx, inv.VendorName, createVendor)
	if err != nil {
		return nil, err
	}
	if vendorID == "" {
		return nil, ErrVendorNotResolved
	}
	if b.cfg.APAccountID == "" || b.cfg.ExpenseAccountID == "" {
		return nil, ErrAccountsNotConfigured
	}

	bill, err := BuildBill(inv, vendorID, b.cfg.APAccountID, b.cfg.ExpenseAccountID)
	if err != nil {
		return nil, err
	}

	resp, err := b.doer.Do(ctx, b.api.Create("bill", bill))
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := DecodeResponse(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to create bill: %w", err)
	}

	cb := ParseCreatedBill(raw)
	out := &InvoiceProcessed{
		Status:            "bill_created",
		InternalInvoiceID: uuid.NewString(),
		VendorName:        inv.VendorName,
		VendorID:          vendorID,
		VendorCreated:     created,
		Total:             inv.Total,
		BillID:            cb.ID,
		Link:              BillLink(cb.ID, b.cfg.Sandbox),
		RawResponse:       raw,
	}

	b.logger.Info("bill created",
		"internal_invoice_id", out.InternalInvoiceID,
		"bill_id", out.BillID,
		"vendor_id", vendorID,
		"vendor_created", created,
		"lines", len(bill.Line))
	return out, nil
}
