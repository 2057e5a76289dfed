package storage

import (
	"context"
	"encoding/json"

	"example.com/healthconnect/internal/record"
)

func priorityKey(c record.Category) string { return "priority/" + string(c) }

// ReadPriority returns the origin priority list of c, highest first.
func ReadPriority(ctx context.Context, tx Tx, c record.Category) ([]string, error) {
	raw, ok, err := tx.Meta(ctx, priorityKey(c))
	if err != nil || !ok || raw == "" {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WritePriority replaces the priority list of c.
func WritePriority(ctx context.Context, tx Tx, c record.Category, origins []string) error {
	raw, err := json.Marshal(origins)
	if err != nil {
		return err
	}
	return tx.PutMeta(ctx, priorityKey(c), string(raw))
}

func appendPriority(ctx context.Context, tx Tx, c record.Category, pkg string) error {
	list, err := ReadPriority(ctx, tx, c)
	if err != nil {
		return err
	}
	for _, o := range list {
		if o == pkg {
			return nil
		}
	}
	return WritePriority(ctx, tx, c, append(list, pkg))
}
