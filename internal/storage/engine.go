package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/filter"
	"example.com/healthconnect/internal/record"
)

const (
	DefaultPageSize = 1000
	MaxPageSize     = 5000
	changesPageSize = 1000
)

// PackageOracle reports installed packages and their display info.
type PackageOracle interface {
	Installed(ctx context.Context, pkg string) (AppInfo, bool)
}

// Engine implements record operations over a Backend.
type Engine struct {
	backend Backend
	oracle  PackageOracle
	now     func() time.Time
	newID   func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithOracle materialises app info for installed origins on first write.
func WithOracle(o PackageOracle) Option { return func(e *Engine) { e.oracle = o } }

// WithClock overrides the modification time source.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDs overrides record id generation.
func WithIDs(fn func() string) Option { return func(e *Engine) { e.newID = fn } }

// New constructs an Engine.
func New(b Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: b,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Backend returns the underlying backend.
func (e *Engine) Backend() Backend { return e.backend }

// Transact runs fn in a read-write transaction.
func (e *Engine) Transact(ctx context.Context, fn func(Tx) error) error {
	return e.backend.Update(ctx, fn)
}

// Read runs fn in a read-only transaction.
func (e *Engine) Read(ctx context.Context, fn func(Tx) error) error {
	return e.backend.View(ctx, fn)
}

func validateAll(recs []record.Record) error {
	for i, r := range recs {
		if err := r.Validate(); err != nil {
			return errs.Wrap(err, errs.CodeInvalidArgument, fmt.Sprintf("record %d", i))
		}
	}
	return nil
}

// Insert stores recs atomically and returns their ids in input order.
func (e *Engine) Insert(ctx context.Context, recs []record.Record) ([]string, error) {
	if err := validateAll(recs); err != nil {
		return nil, err
	}
	var ids []string
	err := e.backend.Update(ctx, func(tx Tx) error {
		var err error
		ids, err = e.InsertTx(ctx, tx, recs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// InsertTx stores recs inside an existing transaction.
func (e *Engine) InsertTx(ctx context.Context, tx Tx, recs []record.Record) ([]string, error) {
	now := e.now()
	ids := make([]string, 0, len(recs))
	for _, in := range recs {
		res, err := e.Resolve(ctx, tx, in)
		if err != nil {
			return nil, err
		}
		ids = append(ids, res.ID)
		if res.Action == ActionIgnore {
			continue
		}
		r := in.Clone()
		r.Metadata.ID = res.ID
		r.Metadata.LastModifiedTime = now
		if err := e.write(ctx, tx, Row{Seq: res.Seq, Record: r}); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Update replaces stored records. Targets are found by client record id when
// set, otherwise by id. If any record fails the store is unchanged.
func (e *Engine) Update(ctx context.Context, recs []record.Record) error {
	if err := validateAll(recs); err != nil {
		return err
	}
	return e.backend.Update(ctx, func(tx Tx) error {
		return e.UpdateTx(ctx, tx, recs)
	})
}

// UpdateTx replaces stored records inside an existing transaction.
func (e *Engine) UpdateTx(ctx context.Context, tx Tx, recs []record.Record) error {
	now := e.now()
	for i, in := range recs {
		target, ok, err := e.locate(ctx, tx, in)
		if err != nil {
			return err
		}
		if !ok {
			return errs.InvalidArgument("record %d: no stored %s record matches id %q client id %q",
				i, in.Kind(), in.ID(), in.Metadata.ClientRecordID).WithOp("update")
		}
		if target.Record.Kind() != in.Kind() {
			return errs.InvalidArgument("record %d: stored record %s is %s, not %s",
				i, target.Record.ID(), target.Record.Kind(), in.Kind()).WithOp("update")
		}
		if target.Record.Origin() != in.Origin() {
			return errs.InvalidArgument("record %d: stored record %s belongs to another origin",
				i, target.Record.ID()).WithOp("update")
		}
		if in.Metadata.ClientRecordID != "" &&
			in.Metadata.ClientRecordVersion < target.Record.Metadata.ClientRecordVersion {
			continue
		}
		r := in.Clone()
		r.Metadata.ID = target.Record.ID()
		r.Metadata.LastModifiedTime = now
		if err := e.write(ctx, tx, Row{Seq: target.Seq, Record: r}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) locate(ctx context.Context, tx Tx, r record.Record) (Row, bool, error) {
	var (
		row Row
		ok  bool
		err error
	)
	if cid := r.Metadata.ClientRecordID; cid != "" {
		row, ok, err = tx.GetByClientID(ctx, r.Kind(), r.Origin(), cid)
	} else if r.ID() != "" {
		row, ok, err = tx.Get(ctx, r.ID())
	}
	if err != nil {
		return Row{}, false, errs.Wrap(err, errs.CodeInternal, "locate record")
	}
	return row, ok, nil
}

func (e *Engine) write(ctx context.Context, tx Tx, row Row) error {
	if err := tx.Put(ctx, row); err != nil {
		return errs.Wrap(err, errs.CodeInternal, "put record")
	}
	if err := e.logChange(ctx, tx, ChangeUpsert, row.Record); err != nil {
		return err
	}
	return e.touchOrigin(ctx, tx, row.Record)
}

func (e *Engine) remove(ctx context.Context, tx Tx, r record.Record) error {
	if err := tx.Delete(ctx, r.ID()); err != nil {
		return errs.Wrap(err, errs.CodeInternal, "delete record")
	}
	return e.logChange(ctx, tx, ChangeDelete, r)
}

func (e *Engine) logChange(ctx context.Context, tx Tx, op ChangeOp, r record.Record) error {
	seq, err := tx.NextSeq(ctx)
	if err != nil {
		return errs.Wrap(err, errs.CodeInternal, "allocate change sequence")
	}
	c := Change{Seq: seq, Op: op, Kind: r.Kind(), RecordID: r.ID(), Origin: r.Origin(), At: e.now()}
	if op == ChangeUpsert {
		snapshot := r.Clone()
		c.Record = &snapshot
	}
	return errs.Wrap(tx.AppendChange(ctx, c), errs.CodeInternal, "append change")
}

// touchOrigin registers a contributing origin: app info for installed
// packages and a slot at the end of the category's priority list.
func (e *Engine) touchOrigin(ctx context.Context, tx Tx, r record.Record) error {
	pkg := r.Origin()
	if e.oracle != nil {
		_, ok, err := tx.AppInfo(ctx, pkg)
		if err != nil {
			return errs.Wrap(err, errs.CodeInternal, "load app info")
		}
		if !ok {
			if info, installed := e.oracle.Installed(ctx, pkg); installed {
				info.PackageName = pkg
				info.Staged = false
				info.UpdatedAt = e.now()
				if err := tx.PutAppInfo(ctx, info); err != nil {
					return errs.Wrap(err, errs.CodeInternal, "store app info")
				}
			}
		}
	}
	return errs.Wrap(appendPriority(ctx, tx, r.Kind().Category(), pkg), errs.CodeInternal, "update priority")
}

// RecordRef addresses a record by id, or by client record id within the
// caller's origin.
type RecordRef struct {
	Kind           record.Kind `json:"kind"`
	ID             string      `json:"id,omitempty"`
	ClientRecordID string      `json:"client_record_id,omitempty"`
}

func (e *Engine) lookupRef(ctx context.Context, tx Tx, origin string, ref RecordRef) (Row, bool, error) {
	var (
		row Row
		ok  bool
		err error
	)
	switch {
	case ref.ID != "":
		row, ok, err = tx.Get(ctx, ref.ID)
	case ref.ClientRecordID != "":
		row, ok, err = tx.GetByClientID(ctx, ref.Kind, origin, ref.ClientRecordID)
	}
	if err != nil {
		return Row{}, false, errs.Wrap(err, errs.CodeInternal, "lookup record")
	}
	if ok && ref.Kind != "" && row.Record.Kind() != ref.Kind {
		return Row{}, false, nil
	}
	return row, ok, nil
}

// DeleteByFilter removes every record matching spec that vis may delete.
func (e *Engine) DeleteByFilter(ctx context.Context, vis filter.Visibility, spec filter.Spec) (int, error) {
	var n int
	err := e.backend.Update(ctx, func(tx Tx) error {
		var err error
		n, err = e.DeleteByFilterTx(ctx, tx, vis, spec)
		return err
	})
	return n, err
}

// DeleteByFilterTx is DeleteByFilter inside an existing transaction.
func (e *Engine) DeleteByFilterTx(ctx context.Context, tx Tx, vis filter.Visibility, spec filter.Spec) (int, error) {
	if !spec.TimeRange.Valid() {
		return 0, errs.InvalidArgument("time range end is before start")
	}
	rows, err := tx.Select(ctx, Query{Spec: spec, Keep: vis.CanDelete})
	if err != nil {
		return 0, errs.Wrap(err, errs.CodeInternal, "select records")
	}
	for _, row := range rows {
		if err := e.remove(ctx, tx, row.Record); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

// DeleteByIDs removes the referenced records. Unknown or foreign references
// are ignored.
func (e *Engine) DeleteByIDs(ctx context.Context, vis filter.Visibility, refs []RecordRef) (int, error) {
	var n int
	err := e.backend.Update(ctx, func(tx Tx) error {
		var err error
		n, err = e.DeleteByIDsTx(ctx, tx, vis, refs)
		return err
	})
	return n, err
}

// DeleteByIDsTx is DeleteByIDs inside an existing transaction.
func (e *Engine) DeleteByIDsTx(ctx context.Context, tx Tx, vis filter.Visibility, refs []RecordRef) (int, error) {
	var n int
	for _, ref := range refs {
		row, ok, err := e.lookupRef(ctx, tx, vis.Caller, ref)
		if err != nil {
			return 0, err
		}
		if !ok || !vis.CanDelete(row.Record) {
			continue
		}
		if err := e.remove(ctx, tx, row.Record); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// ReadByIDs returns the visible referenced records in reference order.
func (e *Engine) ReadByIDs(ctx context.Context, vis filter.Visibility, refs []RecordRef) ([]record.Record, error) {
	var out []record.Record
	err := e.backend.View(ctx, func(tx Tx) error {
		seen := map[string]bool{}
		for _, ref := range refs {
			row, ok, err := e.lookupRef(ctx, tx, vis.Caller, ref)
			if err != nil {
				return err
			}
			if !ok || seen[row.Record.ID()] || !vis.CanRead(row.Record) {
				continue
			}
			seen[row.Record.ID()] = true
			out = append(out, row.Record)
		}
		return nil
	})
	return out, err
}

// ReadRequest is a paged filtered read.
type ReadRequest struct {
	Spec       filter.Spec
	PageSize   int
	PageToken  string
	Descending bool
}

// Page is one page of a filtered read.
type Page struct {
	Records       []record.Record
	NextPageToken string
}

// ReadByFilter returns visible records matching the request in insertion
// order. A page token carries its own direction.
func (e *Engine) ReadByFilter(ctx context.Context, vis filter.Visibility, req ReadRequest) (Page, error) {
	size := req.PageSize
	switch {
	case size == 0:
		size = DefaultPageSize
	case size < 0 || size > MaxPageSize:
		return Page{}, errs.InvalidArgument("page size must be in [1, %d], got %d", MaxPageSize, size)
	}
	if !req.Spec.TimeRange.Valid() {
		return Page{}, errs.InvalidArgument("time range end is before start")
	}
	tok, err := filter.DecodePageToken(req.PageToken)
	if err != nil {
		return Page{}, errs.Wrap(err, errs.CodeInvalidArgument, "invalid page token")
	}
	q := Query{Spec: req.Spec, Descending: req.Descending, Limit: size + 1, Keep: vis.CanRead}
	if tok != nil {
		q.AfterSeq = tok.Seq
		q.Descending = tok.Descending
	}

	var rows []Row
	err = e.backend.View(ctx, func(tx Tx) error {
		var err error
		rows, err = tx.Select(ctx, q)
		return err
	})
	if err != nil {
		return Page{}, errs.Wrap(err, errs.CodeInternal, "select records")
	}

	var page Page
	if len(rows) > size {
		rows = rows[:size]
		next := &filter.PageToken{Seq: rows[len(rows)-1].Seq, Descending: q.Descending}
		page.NextPageToken = next.Encode()
	}
	page.Records = make([]record.Record, 0, len(rows))
	for _, row := range rows {
		page.Records = append(page.Records, row.Record)
	}
	return page, nil
}

// Origins returns every package with at least one stored record.
func (e *Engine) Origins(ctx context.Context) ([]string, error) {
	var out []string
	err := e.backend.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Origins(ctx)
		return err
	})
	return out, err
}

// Priority returns the origin order of a category.
func (e *Engine) Priority(ctx context.Context, c record.Category) ([]string, error) {
	var out []string
	err := e.backend.View(ctx, func(tx Tx) error {
		var err error
		out, err = ReadPriority(ctx, tx, c)
		return err
	})
	return out, err
}

// ModifyPriority rewrites the origin order of a category through fn.
func (e *Engine) ModifyPriority(ctx context.Context, c record.Category, fn func([]string) []string) error {
	return e.backend.Update(ctx, func(tx Tx) error {
		cur, err := ReadPriority(ctx, tx, c)
		if err != nil {
			return err
		}
		return WritePriority(ctx, tx, c, fn(cur))
	})
}
