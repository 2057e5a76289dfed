// Package sqlbuild renders storage queries into SQL for the relational
// backends.
package sqlbuild

import (
	"strconv"
	"strings"
	"time"

	"example.com/healthconnect/internal/storage"
)

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Question is the SQLite placeholder style.
func Question(int) string { return "?" }

// Dollar is the Postgres placeholder style.
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

type builder struct {
	ph    Placeholder
	args  []any
	conds []string
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return b.ph(len(b.args))
}

func (b *builder) in(col string, vals []string) {
	if len(vals) == 0 {
		return
	}
	ps := make([]string, len(vals))
	for i, v := range vals {
		ps[i] = b.arg(v)
	}
	b.conds = append(b.conds, col+" IN ("+strings.Join(ps, ", ")+")")
}

// Columns names the records table columns a query narrows on.
type Columns struct {
	Kind, Origin, ID, ClientID, Start, Seq string
}

// DefaultColumns match the shipped schemas.
var DefaultColumns = Columns{
	Kind: "kind", Origin: "origin", ID: "id", ClientID: "client_record_id", Start: "start_ms", Seq: "seq",
}

// Records returns a WHERE and ORDER BY suffix narrowing the records table for
// q. The result is a superset; callers still apply q.Accepts. start converts
// a time bound to the Start column's type.
func Records(q storage.Query, cols Columns, ph Placeholder, start func(time.Time) any) (string, []any) {
	b := &builder{ph: ph}
	kinds := make([]string, len(q.Spec.Kinds))
	for i, k := range q.Spec.Kinds {
		kinds[i] = string(k)
	}
	b.in(cols.Kind, kinds)
	b.in(cols.Origin, q.Spec.DataOrigins)
	b.in(cols.ID, q.Spec.IDs)
	b.in(cols.ClientID, q.Spec.ClientRecordIDs)
	if tr := q.Spec.TimeRange; !tr.Start.IsZero() {
		b.conds = append(b.conds, cols.Start+" >= "+b.arg(start(tr.Start)))
	}
	if tr := q.Spec.TimeRange; !tr.End.IsZero() {
		b.conds = append(b.conds, cols.Start+" < "+b.arg(start(tr.End)))
	}
	order := " ORDER BY " + cols.Seq + " ASC"
	if q.Descending {
		order = " ORDER BY " + cols.Seq + " DESC"
	}
	if q.AfterSeq > 0 {
		op := " > "
		if q.Descending {
			op = " < "
		}
		b.conds = append(b.conds, cols.Seq+op+b.arg(q.AfterSeq))
	}
	var sb strings.Builder
	if len(b.conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.conds, " AND "))
	}
	sb.WriteString(order)
	return sb.String(), b.args
}
