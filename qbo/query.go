package qbo

import (
	"strconv"
	"strings"
)

const (
	// MaxResults is the provider's page size limit.
	MaxResults = 1000

	// DefaultListResults is the page size for list endpoints.
	DefaultListResults = 100
)

// Cond is one WHERE condition. Values are escaped when the condition is built.
type Cond struct {
	clause string
}

var valueEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Escape quotes s for use inside a single-quoted query literal.
func Escape(s string) string {
	return valueEscaper.Replace(s)
}

// Eq matches field exactly.
func Eq(field, value string) Cond {
	return Cond{clause: field + " = '" + Escape(value) + "'"}
}

// Prefix matches field values starting with value.
func Prefix(field, value string) Cond {
	return Cond{clause: field + " like '" + Escape(value) + "%'"}
}

// Contains matches field values containing value.
func Contains(field, value string) Cond {
	return Cond{clause: field + " like '%" + Escape(value) + "%'"}
}

// Raw passes an operator supplied clause through untouched. It must never
// carry values taken from document content.
func Raw(clause string) Cond {
	return Cond{clause: strings.TrimSpace(clause)}
}

// QueryBuilder assembles a select statement.
type QueryBuilder struct {
	entity  string
	conds   []Cond
	orderBy string
	start   int
	max     int
}

// Select starts a query over entity, e.g. "Vendor".
func Select(entity string) *QueryBuilder {
	return &QueryBuilder{entity: entity}
}

// Where adds conditions joined with AND. Empty conditions are skipped.
func (q *QueryBuilder) Where(conds ...Cond) *QueryBuilder {
	for _, c := range conds {
		if c.clause != "" {
			q.conds = append(q.conds, c)
		}
	}
	return q
}

// OrderBy sets the ORDERBY clause.
func (q *QueryBuilder) OrderBy(clause string) *QueryBuilder {
	q.orderBy = strings.TrimSpace(clause)
	return q
}

// Page sets the window, clamped to start >= 1 and 1 <= max <= MaxResults.
func (q *QueryBuilder) Page(start, max int) *QueryBuilder {
	q.start, q.max = ClampPage(start, max)
	return q
}

// ClampPage applies the provider's pagination bounds.
func ClampPage(start, max int) (int, int) {
	if start < 1 {
		start = 1
	}
	if max < 1 {
		max = 1
	}
	if max > MaxResults {
		max = MaxResults
	}
	return start, max
}

// String renders the statement.
func (q *QueryBuilder) String() string {
	var b strings.Builder
	b.WriteString("select * from ")
	b.WriteString(q.entity)

	for i, c := range q.conds {
		if i == 0 {
			b.WriteString(" where ")
		} else {
			b.WriteString(" and ")
		}
		b.WriteString(c.clause)
	}
	if q.orderBy != "" {
		b.WriteString(" orderby ")
		b.WriteString(q.orderBy)
	}
	if q.max > 0 {
		b.WriteString(" startposition ")
		b.WriteString(strconv.Itoa(q.start))
		b.WriteString(" maxresults ")
		b.WriteString(strconv.Itoa(q.max))
	}
	return b.String()
}
