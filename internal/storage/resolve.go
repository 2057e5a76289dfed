package storage

import (
	"context"

	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/record"
)

// Action is what an insert does to the store.
type Action int

const (
	// ActionInsert stores a new row under a fresh id.
	ActionInsert Action = iota
	// ActionReplace overwrites the row that owns the client record id.
	ActionReplace
	// ActionIgnore drops a write carrying an older client record version.
	ActionIgnore
)

// Resolution is the identity an incoming record maps to.
type Resolution struct {
	Action Action
	ID     string
	Seq    int64
}

// Resolve maps r to a stored identity. Records without a client record id
// always get a new id. A client record id hit is replaced in place when the
// incoming version is not older than the stored one, and ignored otherwise.
func (e *Engine) Resolve(ctx context.Context, tx Tx, r record.Record) (Resolution, error) {
	if cid := r.Metadata.ClientRecordID; cid != "" {
		row, ok, err := tx.GetByClientID(ctx, r.Kind(), r.Origin(), cid)
		if err != nil {
			return Resolution{}, errs.Wrap(err, errs.CodeInternal, "lookup client record id")
		}
		if ok {
			action := ActionReplace
			if r.Metadata.ClientRecordVersion < row.Record.Metadata.ClientRecordVersion {
				action = ActionIgnore
			}
			return Resolution{Action: action, ID: row.Record.ID(), Seq: row.Seq}, nil
		}
	}
	seq, err := tx.NextSeq(ctx)
	if err != nil {
		return Resolution{}, errs.Wrap(err, errs.CodeInternal, "allocate sequence")
	}
	return Resolution{Action: ActionInsert, ID: e.newID(), Seq: seq}, nil
}
