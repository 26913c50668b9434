package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreatePlan persists a plan and its steps in one transaction. Dependencies
// must reference steps of the same plan with strictly smaller step_order;
// the planner validates the DAG before calling here and this check is the
// store-side backstop.
func (s *Store) CreatePlan(p *Plan, steps []*PlanStep, now time.Time) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = PlanPending
	}
	p.TotalSteps = len(steps)

	order := make(map[string]int, len(steps))
	for _, st := range steps {
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		order[st.ID] = st.StepOrder
	}
	for _, st := range steps {
		for _, dep := range st.Dependencies {
			depOrder, ok := order[dep]
			if !ok {
				return fmt.Errorf("step %d depends on unknown step %s", st.StepOrder, dep)
			}
			if depOrder >= st.StepOrder {
				return fmt.Errorf("step %d depends on step with order %d", st.StepOrder, depOrder)
			}
		}
	}

	return s.InTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO plans (id, name, status, priority, total_steps, completed_steps, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
			p.ID, p.Name, string(p.Status), p.Priority, p.TotalSteps, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}
		for _, st := range steps {
			st.PlanID = p.ID
			if st.Status == "" {
				st.Status = StepPending
			}
			_, err := tx.Exec(`
				INSERT INTO plan_steps (id, plan_id, step_order, action_type, action_payload,
					dependencies, status, result_data, retry_count, optional, started_at, completed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				st.ID, st.PlanID, st.StepOrder, st.ActionType, marshalJSON(st.ActionPayload),
				marshalJSON(st.Dependencies), string(st.Status), marshalJSON(st.ResultData),
				st.RetryCount, st.Optional, nullTime(st.StartedAt), nullTime(st.CompletedAt))
			if err != nil {
				return fmt.Errorf("insert step: %w", err)
			}
		}
		return nil
	})
}

// PlansByStatus returns plans in a given status, highest priority first.
func (s *Store) PlansByStatus(statuses ...PlanStatus) ([]*Plan, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, name, status, priority, total_steps, completed_steps, created_at, updated_at
		FROM plans WHERE status IN (?` + repeatPlaceholder(len(statuses)-1) + `)
		ORDER BY priority ASC, created_at ASC`
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Plan
	for rows.Next() {
		p := &Plan{}
		var status string
		if err := rows.Scan(&p.ID, &p.Name, &status, &p.Priority, &p.TotalSteps,
			&p.CompletedSteps, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Status = PlanStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

// GetPlan fetches one plan by id.
func (s *Store) GetPlan(id string) (*Plan, error) {
	p := &Plan{}
	var status string
	err := s.db.QueryRow(`
		SELECT id, name, status, priority, total_steps, completed_steps, created_at, updated_at
		FROM plans WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &status, &p.Priority, &p.TotalSteps, &p.CompletedSteps,
			&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = PlanStatus(status)
	return p, nil
}

// StepsForPlan returns all steps of a plan ordered by step_order.
func (s *Store) StepsForPlan(planID string) ([]*PlanStep, error) {
	rows, err := s.db.Query(`
		SELECT id, plan_id, step_order, action_type, action_payload, dependencies,
			status, result_data, retry_count, optional, started_at, completed_at
		FROM plan_steps WHERE plan_id = ? ORDER BY step_order ASC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*PlanStep
	for rows.Next() {
		st := &PlanStep{}
		var status string
		var payload, deps, result sql.NullString
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(&st.ID, &st.PlanID, &st.StepOrder, &st.ActionType, &payload,
			&deps, &status, &result, &st.RetryCount, &st.Optional, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		st.Status = StepStatus(status)
		unmarshalJSON(payload, &st.ActionPayload)
		unmarshalJSON(deps, &st.Dependencies)
		unmarshalJSON(result, &st.ResultData)
		st.StartedAt = scanNullTime(startedAt)
		st.CompletedAt = scanNullTime(completedAt)
		out = append(out, st)
	}
	return out, rows.Err()
}

// StartStep transitions a pending step to running.
func (s *Store) StartStep(stepID string, now time.Time) error {
	return s.InTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE plan_steps SET status = 'running', started_at = ?
			WHERE id = ? AND status = 'pending'`, now, stepID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("step %s is not pending", stepID)
		}
		return nil
	})
}

// FinishStep records a step outcome and refreshes the plan counters and
// status in the same transaction: completed_steps always equals the count of
// completed-or-skipped steps, and a plan completes exactly when every step is
// in that set.
func (s *Store) FinishStep(stepID string, status StepStatus, result map[string]any, retryCount int, now time.Time) error {
	if status != StepCompleted && status != StepFailed && status != StepSkipped && status != StepPending {
		return fmt.Errorf("invalid terminal step status %q", status)
	}
	return s.InTx(func(tx *sql.Tx) error {
		var planID string
		if err := tx.QueryRow(`SELECT plan_id FROM plan_steps WHERE id = ?`, stepID).Scan(&planID); err != nil {
			return err
		}
		completedAt := any(now)
		if status == StepPending { // retry re-queue
			completedAt = nil
		}
		_, err := tx.Exec(`
			UPDATE plan_steps SET status = ?, result_data = ?, retry_count = ?, completed_at = ?
			WHERE id = ?`,
			string(status), marshalJSON(result), retryCount, completedAt, stepID)
		if err != nil {
			return err
		}
		return refreshPlanTx(tx, planID, now)
	})
}

// refreshPlanTx recomputes completed_steps and derives the plan status.
func refreshPlanTx(tx *sql.Tx, planID string, now time.Time) error {
	var total, done, failed int
	if err := tx.QueryRow(`
		SELECT COUNT(*),
			SUM(CASE WHEN status IN ('completed','skipped') THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)
		FROM plan_steps WHERE plan_id = ?`, planID).Scan(&total, &done, &failed); err != nil {
		return err
	}

	var current string
	if err := tx.QueryRow(`SELECT status FROM plans WHERE id = ?`, planID).Scan(&current); err != nil {
		return err
	}
	status := current
	switch {
	case failed > 0:
		status = string(PlanFailed)
	case done == total && total > 0:
		status = string(PlanCompleted)
	case done > 0 && current == string(PlanPending):
		status = string(PlanActive)
	}
	_, err := tx.Exec(`
		UPDATE plans SET completed_steps = ?, status = ?, updated_at = ?
		WHERE id = ?`, done, status, now, planID)
	return err
}

// SetPlanStatus pauses, resumes, or otherwise forces a plan status.
func (s *Store) SetPlanStatus(planID string, status PlanStatus, now time.Time) error {
	_, err := s.db.Exec(`UPDATE plans SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, planID)
	return err
}

// StaleRunningSteps returns running steps started before the cutoff
// (runaway executions to abort).
func (s *Store) StaleRunningSteps(cutoff time.Time) ([]*PlanStep, error) {
	rows, err := s.db.Query(`
		SELECT id, plan_id, step_order, action_type, action_payload, dependencies,
			status, result_data, retry_count, optional, started_at, completed_at
		FROM plan_steps WHERE status = 'running' AND started_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*PlanStep
	for rows.Next() {
		st := &PlanStep{}
		var status string
		var payload, deps, result sql.NullString
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(&st.ID, &st.PlanID, &st.StepOrder, &st.ActionType, &payload,
			&deps, &status, &result, &st.RetryCount, &st.Optional, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		st.Status = StepStatus(status)
		unmarshalJSON(payload, &st.ActionPayload)
		unmarshalJSON(deps, &st.Dependencies)
		unmarshalJSON(result, &st.ResultData)
		st.StartedAt = scanNullTime(startedAt)
		st.CompletedAt = scanNullTime(completedAt)
		out = append(out, st)
	}
	return out, rows.Err()
}
