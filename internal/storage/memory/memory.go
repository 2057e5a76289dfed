// Package memory is an in-process storage backend.
//
// Every Update copies the whole store before running, so a write costs time
// and memory proportional to the store size. It suits tests and small
// single-user stores; use the sqlite or postgres backends for real volumes.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/storage"
)

type clientKey struct {
	kind     record.Kind
	origin   string
	clientID string
}

type state struct {
	seq      int64
	rows     map[string]storage.Row
	byClient map[clientKey]string
	changes  []storage.Change
	apps     map[string]storage.AppInfo
	meta     map[string]string
}

func newState() *state {
	return &state{
		rows:     map[string]storage.Row{},
		byClient: map[clientKey]string{},
		apps:     map[string]storage.AppInfo{},
		meta:     map[string]string{},
	}
}

// clone copies the maps. Rows are immutable once stored and the change log
// is append-only, so values are shared.
func (s *state) clone() *state {
	cp := &state{
		seq:      s.seq,
		rows:     make(map[string]storage.Row, len(s.rows)),
		byClient: make(map[clientKey]string, len(s.byClient)),
		changes:  s.changes[:len(s.changes):len(s.changes)],
		apps:     make(map[string]storage.AppInfo, len(s.apps)),
		meta:     make(map[string]string, len(s.meta)),
	}
	for k, v := range s.rows {
		cp.rows[k] = v
	}
	for k, v := range s.byClient {
		cp.byClient[k] = v
	}
	for k, v := range s.apps {
		cp.apps[k] = v
	}
	for k, v := range s.meta {
		cp.meta[k] = v
	}
	return cp
}

// Store keeps all data in memory. Update runs against a private copy that is
// published only when the transaction commits.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// New constructs an empty Store.
func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) View(ctx context.Context, fn func(storage.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&tx{st: s.state, readOnly: true})
}

func (s *Store) Update(ctx context.Context, fn func(storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	staged := s.state.clone()
	if err := fn(&tx{st: staged}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (s *Store) Close() error { return nil }

type tx struct {
	st       *state
	readOnly bool
}

func (t *tx) NextSeq(context.Context) (int64, error) {
	if t.readOnly {
		return 0, storage.ErrReadOnly
	}
	t.st.seq++
	return t.st.seq, nil
}

func (t *tx) LastSeq(context.Context) (int64, error) { return t.st.seq, nil }

func (t *tx) Get(_ context.Context, id string) (storage.Row, bool, error) {
	row, ok := t.st.rows[id]
	if !ok {
		return storage.Row{}, false, nil
	}
	row.Record = row.Record.Clone()
	return row, true, nil
}

func (t *tx) GetByClientID(ctx context.Context, kind record.Kind, origin, clientID string) (storage.Row, bool, error) {
	id, ok := t.st.byClient[clientKey{kind, origin, clientID}]
	if !ok {
		return storage.Row{}, false, nil
	}
	return t.Get(ctx, id)
}

func (t *tx) Put(_ context.Context, row storage.Row) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	r := row.Record.Clone()
	if prev, ok := t.st.rows[r.ID()]; ok && prev.Record.Metadata.ClientRecordID != "" {
		delete(t.st.byClient, keyOf(prev.Record))
	}
	t.st.rows[r.ID()] = storage.Row{Seq: row.Seq, Record: r}
	if r.Metadata.ClientRecordID != "" {
		t.st.byClient[keyOf(r)] = r.ID()
	}
	return nil
}

func keyOf(r record.Record) clientKey {
	return clientKey{r.Kind(), r.Origin(), r.Metadata.ClientRecordID}
}

func (t *tx) Delete(_ context.Context, id string) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	prev, ok := t.st.rows[id]
	if !ok {
		return nil
	}
	if prev.Record.Metadata.ClientRecordID != "" {
		delete(t.st.byClient, keyOf(prev.Record))
	}
	delete(t.st.rows, id)
	return nil
}

func (t *tx) Select(_ context.Context, q storage.Query) ([]storage.Row, error) {
	rows := make([]storage.Row, 0, len(t.st.rows))
	for _, row := range t.st.rows {
		if q.AfterSeq > 0 {
			if !q.Descending && row.Seq <= q.AfterSeq {
				continue
			}
			if q.Descending && row.Seq >= q.AfterSeq {
				continue
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if q.Descending {
			return rows[i].Seq > rows[j].Seq
		}
		return rows[i].Seq < rows[j].Seq
	})
	out := make([]storage.Row, 0)
	for _, row := range rows {
		if !q.Accepts(row.Record) {
			continue
		}
		out = append(out, storage.Row{Seq: row.Seq, Record: row.Record.Clone()})
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (t *tx) Origins(context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, row := range t.st.rows {
		if o := row.Record.Origin(); !seen[o] {
			seen[o] = true
			out = append(out, o)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *tx) AppendChange(_ context.Context, c storage.Change) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	t.st.changes = append(t.st.changes, c)
	return nil
}

func (t *tx) ChangesAfter(_ context.Context, seq int64, limit int) ([]storage.Change, error) {
	i := sort.Search(len(t.st.changes), func(i int) bool { return t.st.changes[i].Seq > seq })
	end := len(t.st.changes)
	if limit > 0 && i+limit < end {
		end = i + limit
	}
	out := make([]storage.Change, end-i)
	copy(out, t.st.changes[i:end])
	return out, nil
}

func (t *tx) AppInfo(_ context.Context, pkg string) (storage.AppInfo, bool, error) {
	info, ok := t.st.apps[pkg]
	return info, ok, nil
}

func (t *tx) PutAppInfo(_ context.Context, info storage.AppInfo) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	t.st.apps[info.PackageName] = info
	return nil
}

func (t *tx) ListAppInfo(context.Context) ([]storage.AppInfo, error) {
	out := make([]storage.AppInfo, 0, len(t.st.apps))
	for _, info := range t.st.apps {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageName < out[j].PackageName })
	return out, nil
}

func (t *tx) DeleteStagedAppInfo(context.Context) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	for pkg, info := range t.st.apps {
		if info.Staged {
			delete(t.st.apps, pkg)
		}
	}
	return nil
}

func (t *tx) Meta(_ context.Context, key string) (string, bool, error) {
	v, ok := t.st.meta[key]
	return v, ok, nil
}

func (t *tx) PutMeta(_ context.Context, key, value string) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	t.st.meta[key] = value
	return nil
}
