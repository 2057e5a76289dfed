package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/storage"
	"example.com/healthconnect/internal/storage/sqlbuild"
)

type tx struct {
	tx       *sql.Tx
	readOnly bool
}

const seqKey = "seq"

func (t *tx) NextSeq(ctx context.Context) (int64, error) {
	if t.readOnly {
		return 0, storage.ErrReadOnly
	}
	last, err := t.LastSeq(ctx)
	if err != nil {
		return 0, err
	}
	next := last + 1
	if err := t.PutMeta(ctx, seqKey, strconv.FormatInt(next, 10)); err != nil {
		return 0, err
	}
	return next, nil
}

func (t *tx) LastSeq(ctx context.Context) (int64, error) {
	v, ok, err := t.Meta(ctx, seqKey)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func scanRow(seq int64, body string) (storage.Row, error) {
	r, err := record.Unmarshal([]byte(body))
	if err != nil {
		return storage.Row{}, err
	}
	return storage.Row{Seq: seq, Record: r}, nil
}

func (t *tx) getOne(ctx context.Context, query string, args ...any) (storage.Row, bool, error) {
	var (
		seq  int64
		body string
	)
	err := t.tx.QueryRowContext(ctx, query, args...).Scan(&seq, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Row{}, false, nil
	}
	if err != nil {
		return storage.Row{}, false, err
	}
	row, err := scanRow(seq, body)
	return row, err == nil, err
}

func (t *tx) Get(ctx context.Context, id string) (storage.Row, bool, error) {
	return t.getOne(ctx, `SELECT seq, body FROM records WHERE id = ?`, id)
}

func (t *tx) GetByClientID(ctx context.Context, kind record.Kind, origin, clientID string) (storage.Row, bool, error) {
	return t.getOne(ctx, `SELECT seq, body FROM records WHERE kind = ? AND origin = ? AND client_record_id = ?`,
		string(kind), origin, clientID)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func (t *tx) Put(ctx context.Context, row storage.Row) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	body, err := record.Marshal(row.Record)
	if err != nil {
		return err
	}
	r := row.Record
	_, err = t.tx.ExecContext(ctx, `INSERT INTO records (id, seq, kind, origin, client_record_id, start_ms, body)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            kind = excluded.kind, origin = excluded.origin, client_record_id = excluded.client_record_id,
            start_ms = excluded.start_ms, body = excluded.body`,
		r.ID(), row.Seq, string(r.Kind()), r.Origin(), nullIfEmpty(r.Metadata.ClientRecordID), r.Time().UnixMilli(), string(body))
	return err
}

func (t *tx) Delete(ctx context.Context, id string) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	return err
}

func (t *tx) Select(ctx context.Context, q storage.Query) ([]storage.Row, error) {
	suffix, args := sqlbuild.Records(q, sqlbuild.DefaultColumns, sqlbuild.Question,
		func(ts time.Time) any { return ts.UnixMilli() })
	rows, err := t.tx.QueryContext(ctx, `SELECT seq, body FROM records`+suffix, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]storage.Row, 0)
	for rows.Next() {
		var (
			seq  int64
			body string
		)
		if err := rows.Scan(&seq, &body); err != nil {
			return nil, err
		}
		row, err := scanRow(seq, body)
		if err != nil {
			return nil, err
		}
		if !q.Accepts(row.Record) {
			continue
		}
		out = append(out, row)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, rows.Err()
}

func (t *tx) Origins(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT DISTINCT origin FROM records ORDER BY origin`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *tx) AppendChange(ctx context.Context, c storage.Change) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	var body any
	if c.Record != nil {
		b, err := record.Marshal(*c.Record)
		if err != nil {
			return err
		}
		body = string(b)
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO changes (seq, op, kind, record_id, origin, body, at_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Seq, string(c.Op), string(c.Kind), c.RecordID, c.Origin, body, c.At.UnixMilli())
	return err
}

func (t *tx) ChangesAfter(ctx context.Context, seq int64, limit int) ([]storage.Change, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT seq, op, kind, record_id, origin, body, at_ms FROM changes WHERE seq > ? ORDER BY seq LIMIT ?`, seq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.Change
	for rows.Next() {
		var (
			c        storage.Change
			op, kind string
			body     sql.NullString
			atMs     int64
		)
		if err := rows.Scan(&c.Seq, &op, &kind, &c.RecordID, &c.Origin, &body, &atMs); err != nil {
			return nil, err
		}
		c.Op, c.Kind, c.At = storage.ChangeOp(op), record.Kind(kind), time.UnixMilli(atMs).UTC()
		if body.Valid {
			r, err := record.Unmarshal([]byte(body.String))
			if err != nil {
				return nil, err
			}
			c.Record = &r
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *tx) AppInfo(ctx context.Context, pkg string) (storage.AppInfo, bool, error) {
	var (
		info      storage.AppInfo
		staged    int
		updatedMs int64
	)
	err := t.tx.QueryRowContext(ctx, `SELECT package_name, app_name, icon, staged, updated_ms FROM app_info WHERE package_name = ?`, pkg).
		Scan(&info.PackageName, &info.AppName, &info.Icon, &staged, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.AppInfo{}, false, nil
	}
	if err != nil {
		return storage.AppInfo{}, false, err
	}
	info.Staged = staged != 0
	info.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return info, true, nil
}

func (t *tx) PutAppInfo(ctx context.Context, info storage.AppInfo) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	staged := 0
	if info.Staged {
		staged = 1
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO app_info (package_name, app_name, icon, staged, updated_ms) VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(package_name) DO UPDATE SET app_name = excluded.app_name, icon = excluded.icon,
            staged = excluded.staged, updated_ms = excluded.updated_ms`,
		info.PackageName, info.AppName, info.Icon, staged, info.UpdatedAt.UnixMilli())
	return err
}

func (t *tx) ListAppInfo(ctx context.Context) ([]storage.AppInfo, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT package_name, app_name, icon, staged, updated_ms FROM app_info ORDER BY package_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.AppInfo
	for rows.Next() {
		var (
			info      storage.AppInfo
			staged    int
			updatedMs int64
		)
		if err := rows.Scan(&info.PackageName, &info.AppName, &info.Icon, &staged, &updatedMs); err != nil {
			return nil, err
		}
		info.Staged = staged != 0
		info.UpdatedAt = time.UnixMilli(updatedMs).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

func (t *tx) DeleteStagedAppInfo(ctx context.Context) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM app_info WHERE staged = 1`)
	return err
}

func (t *tx) Meta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (t *tx) PutMeta(ctx context.Context, key, value string) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
