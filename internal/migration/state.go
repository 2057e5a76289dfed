package migration

import (
	"context"
	"encoding/json"
	"time"

	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/storage"
)

// Phase is the stage of the store-wide migration state machine.
type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseComplete   Phase = "COMPLETE"
)

const stateKey = "migration/state"

// State is persisted in the backend meta table.
type State struct {
	Phase      Phase     `json:"phase"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Applied    int       `json:"applied"`
	Failed     int       `json:"failed"`
}

// Blocked reports whether ordinary data calls must be rejected.
func (s State) Blocked() bool { return s.Phase == PhaseInProgress }

// LoadState reads the migration state; a missing row is Idle.
func LoadState(ctx context.Context, tx storage.Tx) (State, error) {
	raw, ok, err := tx.Meta(ctx, stateKey)
	if err != nil {
		return State{}, errs.Wrap(err, errs.CodeInternal, "load migration state")
	}
	if !ok || raw == "" {
		return State{Phase: PhaseIdle}, nil
	}
	var s State
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return State{}, errs.Wrap(err, errs.CodeInternal, "decode migration state")
	}
	return s, nil
}

func saveState(ctx context.Context, tx storage.Tx, s State) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return errs.Wrap(tx.PutMeta(ctx, stateKey, string(raw)), errs.CodeInternal, "save migration state")
}

// Gate is the single global guard consulted before data calls.
type Gate struct {
	eng *storage.Engine
}

// NewGate returns a gate reading state through eng.
func NewGate(eng *storage.Engine) Gate { return Gate{eng: eng} }

// Blocked reports whether a migration is in progress.
func (g Gate) Blocked(ctx context.Context) (bool, error) {
	var blocked bool
	err := g.eng.Read(ctx, func(tx storage.Tx) error {
		var err error
		blocked, err = BlockedTx(ctx, tx)
		return err
	})
	return blocked, err
}

// BlockedTx checks the gate inside an open transaction, so a write and its
// gate check commit or fail together.
func BlockedTx(ctx context.Context, tx storage.Tx) (bool, error) {
	s, err := LoadState(ctx, tx)
	if err != nil {
		return false, err
	}
	return s.Blocked(), nil
}
