// Package storage persists health records behind a backend-neutral engine.
//
// Backends implement Backend/Tx as row primitives; the Engine layers
// identity resolution, atomic batches, visibility and the change log on top.
package storage

import (
	"context"
	"time"

	"example.com/healthconnect/internal/filter"
	"example.com/healthconnect/internal/record"
)

// Row is a stored record with its insertion sequence.
type Row struct {
	Seq    int64
	Record record.Record
}

// Query selects rows in sequence order. Spec is evaluated exactly; backends
// may narrow with indexes first. Keep, when set, is applied after Spec.
type Query struct {
	Spec       filter.Spec
	AfterSeq   int64
	Descending bool
	Limit      int
	Keep       func(record.Record) bool
}

// Accepts reports whether r passes the query predicates. Backends call it on
// every candidate row.
func (q Query) Accepts(r record.Record) bool {
	return q.Spec.Matches(r) && (q.Keep == nil || q.Keep(r))
}

// ChangeOp is the kind of change log entry.
type ChangeOp string

const (
	ChangeUpsert ChangeOp = "UPSERT"
	ChangeDelete ChangeOp = "DELETE"
)

// Change is one entry in the change log.
type Change struct {
	Seq      int64
	Op       ChangeOp
	Kind     record.Kind
	RecordID string
	Origin   string
	Record   *record.Record
	At       time.Time
}

// AppInfo describes a contributing application. Staged entries come from
// migration and are only shown for packages that are not installed.
type AppInfo struct {
	PackageName string
	AppName     string
	Icon        []byte
	Staged      bool
	UpdatedAt   time.Time
}

// Tx is a backend transaction. Methods on a read-only Tx that mutate return
// ErrReadOnly.
type Tx interface {
	NextSeq(ctx context.Context) (int64, error)
	LastSeq(ctx context.Context) (int64, error)

	Get(ctx context.Context, id string) (Row, bool, error)
	// GetByClientID locks the (kind, origin, clientID) identity for the rest
	// of the transaction.
	GetByClientID(ctx context.Context, kind record.Kind, origin, clientID string) (Row, bool, error)
	Put(ctx context.Context, row Row) error
	Delete(ctx context.Context, id string) error
	Select(ctx context.Context, q Query) ([]Row, error)
	Origins(ctx context.Context) ([]string, error)

	AppendChange(ctx context.Context, c Change) error
	ChangesAfter(ctx context.Context, seq int64, limit int) ([]Change, error)

	AppInfo(ctx context.Context, pkg string) (AppInfo, bool, error)
	PutAppInfo(ctx context.Context, info AppInfo) error
	ListAppInfo(ctx context.Context) ([]AppInfo, error)
	DeleteStagedAppInfo(ctx context.Context) error

	Meta(ctx context.Context, key string) (string, bool, error)
	PutMeta(ctx context.Context, key, value string) error
}

// Backend runs transactions. Update commits only when fn returns nil.
type Backend interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}
