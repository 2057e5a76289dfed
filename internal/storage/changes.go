package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/filter"
	"example.com/healthconnect/internal/record"
)

type changesToken struct {
	Seq     int64         `json:"seq"`
	Kinds   []record.Kind `json:"kinds,omitempty"`
	Origins []string      `json:"origins,omitempty"`
}

func (t changesToken) encode() (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeChangesToken(s string) (changesToken, error) {
	var t changesToken
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return t, errs.Wrap(err, errs.CodeInvalidArgument, "invalid changes token")
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, errs.Wrap(err, errs.CodeInvalidArgument, "invalid changes token")
	}
	return t, nil
}

func (t changesToken) wants(c Change) bool {
	if len(t.Kinds) > 0 && !contains(t.Kinds, c.Kind) {
		return false
	}
	return len(t.Origins) == 0 || contains(t.Origins, c.Origin)
}

func contains[T comparable](xs []T, x T) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// ChangesResponse is one page of the change feed.
type ChangesResponse struct {
	Upserts   []record.Record
	Deletions []string
	NextToken string
	HasMore   bool
}

// ChangesToken returns a token positioned at the current end of the change
// log, scoped to kinds and origins.
func (e *Engine) ChangesToken(ctx context.Context, kinds []record.Kind, origins []string) (string, error) {
	for _, k := range kinds {
		if !k.Valid() {
			return "", errs.InvalidArgument("unsupported record kind %q", k)
		}
	}
	var seq int64
	err := e.backend.View(ctx, func(tx Tx) error {
		var err error
		seq, err = tx.LastSeq(ctx)
		return err
	})
	if err != nil {
		return "", errs.Wrap(err, errs.CodeInternal, "read sequence")
	}
	return changesToken{Seq: seq, Kinds: kinds, Origins: origins}.encode()
}

// Changes returns the visible changes recorded after token.
func (e *Engine) Changes(ctx context.Context, vis filter.Visibility, token string) (ChangesResponse, error) {
	tok, err := decodeChangesToken(token)
	if err != nil {
		return ChangesResponse{}, err
	}
	var log []Change
	err = e.backend.View(ctx, func(tx Tx) error {
		var err error
		log, err = tx.ChangesAfter(ctx, tok.Seq, changesPageSize+1)
		return err
	})
	if err != nil {
		return ChangesResponse{}, errs.Wrap(err, errs.CodeInternal, "scan changes")
	}

	var resp ChangesResponse
	if len(log) > changesPageSize {
		log = log[:changesPageSize]
		resp.HasMore = true
	}
	next := tok
	for _, c := range log {
		next.Seq = c.Seq
		if !tok.wants(c) || !canSee(vis, c) {
			continue
		}
		switch c.Op {
		case ChangeUpsert:
			if c.Record != nil {
				resp.Upserts = append(resp.Upserts, *c.Record)
			}
		case ChangeDelete:
			resp.Deletions = append(resp.Deletions, c.RecordID)
		}
	}
	resp.NextToken, err = next.encode()
	return resp, err
}

func canSee(vis filter.Visibility, c Change) bool {
	if vis.Privileged {
		return true
	}
	if c.Origin == vis.Caller {
		return vis.Readable[c.Kind] || vis.Writable[c.Kind]
	}
	return vis.Readable[c.Kind]
}
