package dvfs

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultStepLimit = 100
	maxStepLimit     = 1000

	stepTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// StepHistory persists step changes to the dvfs_steps table.
type StepHistory struct {
	db     *sql.DB
	logger Logger
}

// NewStepHistory creates a store on an open, migrated database.
func NewStepHistory(db *sql.DB, logger Logger) *StepHistory {
	if logger == nil {
		logger = noopLogger{}
	}
	return &StepHistory{db: db, logger: logger}
}

// Record inserts one change.
func (h *StepHistory) Record(ctx context.Context, c Change) error {
	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO dvfs_steps
		   (from_step, to_step, clock_mhz, voltage_uv, utilisation, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.From, c.To, c.Step.ClockMHz, c.Step.VoltageUV, c.Utilisation,
		string(c.Reason), at.UTC().Format(stepTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting dvfs step: %w", err)
	}
	return nil
}

// Observe is an Observer that records c and logs failures.
func (h *StepHistory) Observe(c Change) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Record(ctx, c); err != nil {
		h.logger.Error("recording dvfs step failed", "error", err)
	}
}

// List returns the most recent changes, newest first. A non-positive limit
// uses the default.
func (h *StepHistory) List(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = defaultStepLimit
	}
	if limit > maxStepLimit {
		limit = maxStepLimit
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT from_step, to_step, clock_mhz, voltage_uv, utilisation, reason, created_at
		 FROM dvfs_steps ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying dvfs steps: %w", err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var (
			c      Change
			reason string
			at     string
		)
		if err := rows.Scan(&c.From, &c.To, &c.Step.ClockMHz, &c.Step.VoltageUV,
			&c.Utilisation, &reason, &at); err != nil {
			return nil, fmt.Errorf("scanning dvfs step: %w", err)
		}
		c.Reason = Reason(reason)
		if t, perr := time.Parse(stepTimeLayout, at); perr == nil {
			c.At = t
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dvfs steps: %w", err)
	}
	return out, nil
}
