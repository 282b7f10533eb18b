package qbo

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// HomeCurrency is the company currency bills are booked in.
const HomeCurrency = "USD"

const dateLayout = "2006-01-02"

// ErrInvalidInvoice wraps every invoice validation failure.
var ErrInvalidInvoice = errors.New("invalid invoice")

// InvoiceLineItem is one line of an extracted invoice.
type InvoiceLineItem struct {
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity" binding:"gte=0"`
	UnitPrice   float64 `json:"unit_price" binding:"gte=0"`
	Amount      float64 `json:"amount" binding:"gte=0"`
}

// InvoiceIn is a structured invoice as produced by document extraction.
// Dates are YYYY-MM-DD.
type InvoiceIn struct {
	VendorName      string            `json:"vendor_name"`
	InvoiceNumber   string            `json:"invoice_number,omitempty"`
	InvoiceDate     string            `json:"invoice_date,omitempty"`
	DueDate         string            `json:"due_date,omitempty"`
	Currency        string            `json:"currency,omitempty"`
	LineItems       []InvoiceLineItem `json:"line_items" binding:"dive"`
	Subtotal        float64           `json:"subtotal"`
	Tax             float64           `json:"tax"`
	Total           float64           `json:"total"`
	Source          string            `json:"source,omitempty"`
	OriginalSubject string            `json:"original_subject,omitempty"`
	SenderEmail     string            `json:"sender_email,omitempty" binding:"omitempty,email"`
	FileURL         string            `json:"file_url,omitempty"`
}

// Validate checks the invariants the bill builder relies on.
func (inv *InvoiceIn) Validate() error {
	var errs []error
	for i, li := range inv.LineItems {
		if li.Quantity < 0 || li.UnitPrice < 0 || li.Amount < 0 {
			errs = append(errs, fmt.Errorf("line_items[%d]: quantity, unit_price and amount must be >= 0", i))
		}
	}
	dates := [...]struct{ field, value string }{
		{"invoice_date", inv.InvoiceDate},
		{"due_date", inv.DueDate},
	}
	for _, d := range dates {
		if d.value == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, d.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a YYYY-MM-DD date", d.field, d.value))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidInvoice, errors.Join(errs...))
}

// Ref is a reference to another entity.
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// AccountBasedExpenseLineDetail books a line against an expense account.
type AccountBasedExpenseLineDetail struct {
	AccountRef Ref `json:"AccountRef"`
}

// BillLine is one expense line of a bill.
type BillLine struct {
	DetailType                    string                        `json:"DetailType"`
	Amount                        float64                       `json:"Amount"`
	Description                   string                        `json:"Description"`
	AccountBasedExpenseLineDetail AccountBasedExpenseLineDetail `json:"AccountBasedExpenseLineDetail"`
}

// Bill is the create payload for the provider's Bill entity.
type Bill struct {
	VendorRef    Ref        `json:"VendorRef"`
	APAccountRef Ref        `json:"APAccountRef"`
	Line         []BillLine `json:"Line"`
	CurrencyRef  Ref        `json:"CurrencyRef"`
	DocNumber    string     `json:"DocNumber,omitempty"`
	TxnDate      string     `json:"TxnDate,omitempty"`
	DueDate      string     `json:"DueDate,omitempty"`
	PrivateNote  string     `json:"PrivateNote,omitempty"`
}

// BuildBill turns an invoice into a bill payload with one expense line per
// invoice line.
func BuildBill(inv *InvoiceIn, vendorID, apAccountID, expenseAccountID string) (*Bill, error) {
	if vendorID == "" {
		return nil, errors.New("vendor id is required to create a bill")
	}

	bill := &Bill{
		VendorRef:    Ref{Value: vendorID},
		APAccountRef: Ref{Value: apAccountID},
		Line:         make([]BillLine, 0, len(inv.LineItems)),
		CurrencyRef:  Ref{Value: HomeCurrency},
		DocNumber:    inv.InvoiceNumber,
		TxnDate:      inv.InvoiceDate,
		DueDate:      inv.DueDate,
	}

	for _, li := range inv.LineItems {
		bill.Line = append(bill.Line, BillLine{
			DetailType:  "AccountBasedExpenseLineDetail",
			Amount:      li.Amount,
			Description: li.Description,
			AccountBasedExpenseLineDetail: AccountBasedExpenseLineDetail{
				AccountRef: Ref{Value: expenseAccountID},
			},
		})
	}

	var note []string
	if inv.Source != "" {
		note = append(note, "Source: "+inv.Source)
	}
	if inv.FileURL != "" {
		note = append(note, "File: "+inv.FileURL)
	}
	bill.PrivateNote = strings.Join(note, " | ")

	return bill, nil
}

// BillLink is the web UI address of a bill.
func BillLink(billID string, sandbox bool) string {
	if billID == "" {
		return ""
	}
	host := "https://app.qbo.intuit.com"
	if sandbox {
		host = "https://app.sandbox.qbo.intuit.com"
	}
	return host + "/app/bill?txnId=" + billID
}

// CreatedBill is the provider's answer to a bill create, kept raw for the caller.
type CreatedBill struct {
	ID  string
	Raw map[string]any
}

// ParseCreatedBill pulls the bill id out of a create response.
func ParseCreatedBill(raw map[string]any) CreatedBill {
	out := CreatedBill{Raw: raw}
	for _, key := range []string{"Bill", "bill"} {
		if obj, ok := raw[key].(map[string]any); ok {
			if id, ok := obj["Id"].(string); ok {
				out.ID = id
				return out
			}
		}
	}
	return out
}
