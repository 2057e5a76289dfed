package migration

import (
	"context"

	"example.com/healthconnect/internal/record"
)

// Priority returns the data origins of c, highest priority first.
func (m *Migrator) Priority(ctx context.Context, c record.Category) ([]string, error) {
	return m.eng.Priority(ctx, c)
}

// UpdatePriority reorders the origins of c. See MergePriority.
func (m *Migrator) UpdatePriority(ctx context.Context, c record.Category, origins []string) error {
	return m.eng.ModifyPriority(ctx, c, func(cur []string) []string {
		return MergePriority(cur, origins)
	})
}

// MergePriority places the supplied origins that are already listed first,
// in supplied order, then the listed origins that were omitted. Origins not
// in existing are dropped, so a list of only unknown origins changes nothing.
func MergePriority(existing, supplied []string) []string {
	known := make(map[string]bool, len(existing))
	for _, o := range existing {
		known[o] = true
	}
	out := make([]string, 0, len(existing))
	placed := make(map[string]bool, len(existing))
	for _, o := range supplied {
		if known[o] && !placed[o] {
			out = append(out, o)
			placed[o] = true
		}
	}
	for _, o := range existing {
		if !placed[o] {
			out = append(out, o)
			placed[o] = true
		}
	}
	return out
}
