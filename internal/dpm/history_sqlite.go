package dpm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// historyTimeLayout is fixed width so that stored timestamps sort correctly.
	historyTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// SQLiteHistory implements HistoryStore using the transitions table.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory creates a history store on an open database.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//
// Returns:
//   - *SQLiteHistory: Store ready for use
func NewSQLiteHistory(db *sql.DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

// Save inserts a finished transition.
func (h *SQLiteHistory) Save(ctx context.Context, t *Transition) error {
	if t.ID == "" {
		return fmt.Errorf("transition id is required")
	}
	phases, err := json.Marshal(t.Phases)
	if err != nil {
		return fmt.Errorf("marshalling phases: %w", err)
	}

	_, err = h.db.ExecContext(ctx,
		`INSERT INTO transitions
		   (id, event, started_at, finished_at, result, error, failed_device, rolled_back, phases)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Event,
		t.StartedAt.UTC().Format(historyTimeLayout),
		t.FinishedAt.UTC().Format(historyTimeLayout),
		t.Result,
		nullString(t.Error),
		nullString(t.FailedDevice),
		boolToInt(t.RolledBack),
		string(phases),
	)
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}
	return nil
}

// List returns recent transitions, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 500)
func (h *SQLiteHistory) List(ctx context.Context, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, event, started_at, finished_at, result, error, failed_device, rolled_back, phases
		 FROM transitions
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	out := make([]Transition, 0, limit)
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}
	return out, nil
}

// Get returns a single transition by ID.
func (h *SQLiteHistory) Get(ctx context.Context, id string) (*Transition, error) {
	row := h.db.QueryRowContext(ctx,
		`SELECT id, event, started_at, finished_at, result, error, failed_device, rolled_back, phases
		 FROM transitions WHERE id = ?`,
		id,
	)
	t, err := scanTransition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransitionNotFound
	}
	return t, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransition(row rowScanner) (*Transition, error) {
	var (
		t                     Transition
		started, finished     string
		errText, failedDevice sql.NullString
		rolledBack            int
		phases                string
	)
	err := row.Scan(&t.ID, &t.Event, &started, &finished, &t.Result, &errText, &failedDevice, &rolledBack, &phases)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning transition: %w", err)
	}

	if t.StartedAt, err = time.Parse(historyTimeLayout, started); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if t.FinishedAt, err = time.Parse(historyTimeLayout, finished); err != nil {
		return nil, fmt.Errorf("parsing finished_at: %w", err)
	}
	t.Error = errText.String
	t.FailedDevice = failedDevice.String
	t.RolledBack = rolledBack != 0
	if err := json.Unmarshal([]byte(phases), &t.Phases); err != nil {
		return nil, fmt.Errorf("unmarshalling phases: %w", err)
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
