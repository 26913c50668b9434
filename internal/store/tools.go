package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// UpsertTool registers or refreshes a tool descriptor. Execution counters
// are preserved on refresh.
func (s *Store) UpsertTool(t *ToolDescriptor) error {
	_, err := s.db.Exec(`
		INSERT INTO tools (name, category, parameters_schema, requires_confirmation,
			cost_tier, enabled, total_executions, total_successes)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0)
		ON CONFLICT(name) DO UPDATE SET category = excluded.category,
			parameters_schema = excluded.parameters_schema,
			requires_confirmation = excluded.requires_confirmation,
			cost_tier = excluded.cost_tier, enabled = excluded.enabled`,
		t.Name, t.Category, marshalJSON(t.ParametersSchema),
		t.RequiresConfirmation, t.CostTier, t.Enabled)
	return err
}

// GetTool fetches one tool descriptor.
func (s *Store) GetTool(name string) (*ToolDescriptor, error) {
	t := &ToolDescriptor{}
	var schema sql.NullString
	err := s.db.QueryRow(`
		SELECT name, category, parameters_schema, requires_confirmation, cost_tier,
			enabled, total_executions, total_successes
		FROM tools WHERE name = ?`, name).
		Scan(&t.Name, &t.Category, &schema, &t.RequiresConfirmation, &t.CostTier,
			&t.Enabled, &t.TotalExecutions, &t.TotalSuccesses)
	if err != nil {
		return nil, err
	}
	unmarshalJSON(schema, &t.ParametersSchema)
	return t, nil
}

// ListTools returns all registered tool descriptors.
func (s *Store) ListTools() ([]*ToolDescriptor, error) {
	rows, err := s.db.Query(`
		SELECT name, category, parameters_schema, requires_confirmation, cost_tier,
			enabled, total_executions, total_successes
		FROM tools ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ToolDescriptor
	for rows.Next() {
		t := &ToolDescriptor{}
		var schema sql.NullString
		if err := rows.Scan(&t.Name, &t.Category, &schema, &t.RequiresConfirmation,
			&t.CostTier, &t.Enabled, &t.TotalExecutions, &t.TotalSuccesses); err != nil {
			return nil, err
		}
		unmarshalJSON(schema, &t.ParametersSchema)
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordToolExecution logs one invocation and bumps the descriptor counters
// in the same transaction.
func (s *Store) RecordToolExecution(e *ToolExecution, now time.Time) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.InTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tool_executions (id, tool_name, duration_ms, success, summary, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.ToolName, e.DurationMS, e.Success, nullString(e.Summary), e.CreatedAt)
		if err != nil {
			return err
		}
		success := 0
		if e.Success {
			success = 1
		}
		_, err = tx.Exec(`
			UPDATE tools SET total_executions = total_executions + 1,
				total_successes = total_successes + ?
			WHERE name = ?`, success, e.ToolName)
		return err
	})
}
