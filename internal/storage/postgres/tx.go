package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/storage"
	"example.com/healthconnect/internal/storage/sqlbuild"
)

var columns = sqlbuild.Columns{
	Kind: "kind", Origin: "origin", ID: "id", ClientID: "client_record_id", Start: "start_time", Seq: "seq",
}

type pgTx struct {
	tx       pgx.Tx
	readOnly bool
}

func (t *pgTx) lock(ctx context.Context, key string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

func (t *pgTx) NextSeq(ctx context.Context) (int64, error) {
	if t.readOnly {
		return 0, storage.ErrReadOnly
	}
	var seq int64
	err := t.tx.QueryRow(ctx, `SELECT nextval('health_seq')`).Scan(&seq)
	return seq, err
}

func (t *pgTx) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := t.tx.QueryRow(ctx, `SELECT CASE WHEN is_called THEN last_value ELSE 0 END FROM health_seq`).Scan(&seq)
	return seq, err
}

func (t *pgTx) getOne(ctx context.Context, query string, args ...any) (storage.Row, bool, error) {
	var (
		seq  int64
		body []byte
	)
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&seq, &body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Row{}, false, nil
		}
		return storage.Row{}, false, err
	}
	r, err := record.Unmarshal(body)
	if err != nil {
		return storage.Row{}, false, err
	}
	return storage.Row{Seq: seq, Record: r}, true, nil
}

func (t *pgTx) Get(ctx context.Context, id string) (storage.Row, bool, error) {
	return t.getOne(ctx, `SELECT seq, body FROM records WHERE id = $1`, id)
}

func (t *pgTx) GetByClientID(ctx context.Context, kind record.Kind, origin, clientID string) (storage.Row, bool, error) {
	if !t.readOnly {
		if err := t.lock(ctx, "record:"+string(kind)+"|"+origin+"|"+clientID); err != nil {
			return storage.Row{}, false, err
		}
	}
	return t.getOne(ctx, `SELECT seq, body FROM records WHERE kind = $1 AND origin = $2 AND client_record_id = $3`,
		string(kind), origin, clientID)
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func (t *pgTx) Put(ctx context.Context, row storage.Row) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	body, err := record.Marshal(row.Record)
	if err != nil {
		return err
	}
	r := row.Record
	_, err = t.tx.Exec(ctx, `INSERT INTO records (id, seq, kind, origin, client_record_id, start_time, body)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO UPDATE SET
            kind = EXCLUDED.kind, origin = EXCLUDED.origin, client_record_id = EXCLUDED.client_record_id,
            start_time = EXCLUDED.start_time, body = EXCLUDED.body`,
		r.ID(), row.Seq, string(r.Kind()), r.Origin(), nullIfEmpty(r.Metadata.ClientRecordID), r.Time(), body)
	return err
}

func (t *pgTx) Delete(ctx context.Context, id string) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	return err
}

func (t *pgTx) Select(ctx context.Context, q storage.Query) ([]storage.Row, error) {
	suffix, args := sqlbuild.Records(q, columns, sqlbuild.Dollar, func(ts time.Time) any { return ts })
	rows, err := t.tx.Query(ctx, `SELECT seq, body FROM records`+suffix, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]storage.Row, 0)
	for rows.Next() {
		var (
			seq  int64
			body []byte
		)
		if err := rows.Scan(&seq, &body); err != nil {
			return nil, err
		}
		r, err := record.Unmarshal(body)
		if err != nil {
			return nil, err
		}
		if !q.Accepts(r) {
			continue
		}
		out = append(out, storage.Row{Seq: seq, Record: r})
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, rows.Err()
}

func (t *pgTx) Origins(ctx context.Context) ([]string, error) {
	rows, err := t.tx.Query(ctx, `SELECT DISTINCT origin FROM records ORDER BY origin`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (t *pgTx) AppendChange(ctx context.Context, c storage.Change) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	var body []byte
	if c.Record != nil {
		b, err := record.Marshal(*c.Record)
		if err != nil {
			return err
		}
		body = b
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO changes (seq, op, kind, record_id, origin, body, at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.Seq, string(c.Op), string(c.Kind), c.RecordID, c.Origin, body, c.At)
	return err
}

func (t *pgTx) ChangesAfter(ctx context.Context, seq int64, limit int) ([]storage.Change, error) {
	rows, err := t.tx.Query(ctx, `SELECT seq, op, kind, record_id, origin, body, at FROM changes WHERE seq > $1 ORDER BY seq LIMIT $2`, seq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.Change
	for rows.Next() {
		c, err := ScanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ScanChange reads seq, op, kind, record_id, origin, body and at.
func ScanChange(row pgx.Row) (storage.Change, error) {
	var (
		c        storage.Change
		op, kind string
		body     []byte
	)
	if err := row.Scan(&c.Seq, &op, &kind, &c.RecordID, &c.Origin, &body, &c.At); err != nil {
		return storage.Change{}, err
	}
	c.Op, c.Kind, c.At = storage.ChangeOp(op), record.Kind(kind), c.At.UTC()
	if len(body) > 0 {
		r, err := record.Unmarshal(body)
		if err != nil {
			return storage.Change{}, err
		}
		c.Record = &r
	}
	return c, nil
}

func scanAppInfo(row pgx.Row) (storage.AppInfo, error) {
	var info storage.AppInfo
	if err := row.Scan(&info.PackageName, &info.AppName, &info.Icon, &info.Staged, &info.UpdatedAt); err != nil {
		return storage.AppInfo{}, err
	}
	info.UpdatedAt = info.UpdatedAt.UTC()
	return info, nil
}

func (t *pgTx) AppInfo(ctx context.Context, pkg string) (storage.AppInfo, bool, error) {
	info, err := scanAppInfo(t.tx.QueryRow(ctx,
		`SELECT package_name, app_name, icon, staged, updated_at FROM app_info WHERE package_name = $1`, pkg))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.AppInfo{}, false, nil
	}
	if err != nil {
		return storage.AppInfo{}, false, err
	}
	return info, true, nil
}

func (t *pgTx) PutAppInfo(ctx context.Context, info storage.AppInfo) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO app_info (package_name, app_name, icon, staged, updated_at) VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (package_name) DO UPDATE SET app_name = EXCLUDED.app_name, icon = EXCLUDED.icon,
            staged = EXCLUDED.staged, updated_at = EXCLUDED.updated_at`,
		info.PackageName, info.AppName, info.Icon, info.Staged, info.UpdatedAt)
	return err
}

func (t *pgTx) ListAppInfo(ctx context.Context) ([]storage.AppInfo, error) {
	rows, err := t.tx.Query(ctx, `SELECT package_name, app_name, icon, staged, updated_at FROM app_info ORDER BY package_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.AppInfo
	for rows.Next() {
		info, err := scanAppInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (t *pgTx) DeleteStagedAppInfo(ctx context.Context) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM app_info WHERE staged`)
	return err
}

// Meta locks key in read-write transactions so read-modify-write cycles on
// the same key serialise.
func (t *pgTx) Meta(ctx context.Context, key string) (string, bool, error) {
	if !t.readOnly {
		if err := t.lock(ctx, "meta:"+key); err != nil {
			return "", false, err
		}
	}
	var v string
	if err := t.tx.QueryRow(ctx, `SELECT value FROM meta WHERE key = $1`, key).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (t *pgTx) PutMeta(ctx context.Context, key, value string) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO meta (key, value) VALUES ($1,$2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}
