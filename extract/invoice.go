package extract

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-authgate/qbo-bridge/qbo"
)

// Source tags invoices that came through the extraction agent.
const Source = "document extraction"

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// ToInvoice maps whatever shape the agent answered with onto an invoice.
// Missing totals are derived from the lines, and a bare total becomes a
// single line.
func ToInvoice(resp Response, documentURL string) *qbo.InvoiceIn {
	data := unwrap(resp)

	lines := lineItems(data)
	if len(lines) == 0 {
		if total := number(data["total"]); total > 0 {
			desc := str(data, "description")
			if desc == "" {
				desc = "Invoice line item"
			}
			lines = []qbo.InvoiceLineItem{{
				Description: desc,
				Quantity:    1,
				UnitPrice:   total,
				Amount:      total,
			}}
		}
	}

	subtotal := number(data["subtotal"])
	tax := number(first(data, "tax", "tax_amount"))
	total := number(data["total"])
	if subtotal == 0 && len(lines) > 0 {
		for _, li := range lines {
			subtotal += li.Amount
		}
	}
	if total == 0 {
		total = subtotal + tax
	}

	currency := str(data, "currency", "currency_code")
	if currency == "" {
		currency = qbo.HomeCurrency
	}

	return &qbo.InvoiceIn{
		VendorName:      str(data, "vendor_name", "vendor", "supplier", "supplier_name"),
		InvoiceNumber:   str(data, "invoice_number", "invoice_no", "number", "doc_number"),
		InvoiceDate:     date(str(data, "invoice_date", "date", "invoiceDate")),
		DueDate:         date(str(data, "due_date", "dueDate", "due")),
		Currency:        currency,
		LineItems:       lines,
		Subtotal:        subtotal,
		Tax:             tax,
		Total:           total,
		Source:          Source,
		OriginalSubject: str(data, "subject", "title"),
		SenderEmail:     str(data, "sender_email", "email", "senderEmail"),
		FileURL:         documentURL,
	}
}

// unwrap finds the object holding the invoice fields.
func unwrap(resp Response) map[string]any {
	data := map[string]any(resp)

	if raw, ok := data["raw_text"].(string); ok {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			data = parsed
		}
	}

	switch sd := data["structured_data"].(type) {
	case map[string]any:
		return sd
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(sd), &parsed); err == nil {
			return parsed
		}
	}
	for _, key := range []string{"invoice", "data", "result"} {
		if nested, ok := data[key].(map[string]any); ok {
			return nested
		}
	}
	return data
}

func lineItems(data map[string]any) []qbo.InvoiceLineItem {
	for _, key := range []string{"line_items", "items", "lines"} {
		raw, ok := data[key].([]any)
		if !ok {
			continue
		}
		out := make([]qbo.InvoiceLineItem, 0, len(raw))
		for _, r := range raw {
			item, ok := r.(map[string]any)
			if !ok {
				continue
			}
			qty := 1.0
			if v, ok := item["quantity"]; ok && v != nil {
				qty = number(v)
			}
			out = append(out, qbo.InvoiceLineItem{
				Description: str(item, "description", "desc", "item", "name"),
				Quantity:    nonNegative(qty),
				UnitPrice:   nonNegative(number(first(item, "unit_price", "price", "unitPrice"))),
				Amount:      nonNegative(number(first(item, "amount", "total"))),
			})
		}
		return out
	}
	return nil
}

func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}

func str(m map[string]any, keys ...string) string {
	switch v := first(m, keys...).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimLeft(s, "$€£")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

// date normalises to YYYY-MM-DD, dropping values it cannot read.
func date(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
