package qbo

// Entity maps a route name to the provider's entity type and path segment.
type Entity struct {
	Plural   string // route name, e.g. "credit_memos"
	Type     string // query entity name, e.g. "CreditMemo"
	Resource string // REST path segment, e.g. "creditmemo"
}

// Entities is the fixed set of entities exposed for reading.
var Entities = []Entity{
	{"customers", "Customer", "customer"},
	{"vendors", "Vendor", "vendor"},
	{"items", "Item", "item"},
	{"accounts", "Account", "account"},
	{"invoices", "Invoice", "invoice"},
	{"bills", "Bill", "bill"},
	{"payments", "Payment", "payment"},
	{"purchases", "Purchase", "purchase"},
	{"employees", "Employee", "employee"},
	{"estimates", "Estimate", "estimate"},
	{"credit_memos", "CreditMemo", "creditmemo"},
	{"journal_entries", "JournalEntry", "journalentry"},
	{"classes", "Class", "class"},
	{"departments", "Department", "department"},
	{"taxcodes", "TaxCode", "taxcode"},
}

// LookupEntity finds an entity by route name.
func LookupEntity(plural string) (Entity, bool) {
	for _, e := range Entities {
		if e.Plural == plural {
			return e, true
		}
	}
	return Entity{}, false
}
