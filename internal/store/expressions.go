package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NormalizeContent lowercases and collapses whitespace so near-identical
// phrasings share a dedup key.
func NormalizeContent(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}

// RecordSuppression writes a failed attempt with its suppress reason. The
// thought stays active.
func (s *Store) RecordSuppression(a *ExpressionAttempt, now time.Time) error {
	a.Success = false
	return s.InTx(func(tx *sql.Tx) error {
		return insertAttemptTx(tx, a, now)
	})
}

// RecordEmission writes a successful attempt and advances the thought to
// expressed in the same transaction, preserving the one-success-per-expressed
// invariant.
func (s *Store) RecordEmission(a *ExpressionAttempt, now time.Time) error {
	a.Success = true
	a.SuppressReason = SuppressNone
	return s.InTx(func(tx *sql.Tx) error {
		var prior int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM expression_attempts WHERE thought_id = ? AND success = 1`,
			a.ThoughtID).Scan(&prior); err != nil {
			return err
		}
		if prior > 0 {
			return fmt.Errorf("thought %s already has a successful attempt", a.ThoughtID)
		}
		if err := insertAttemptTx(tx, a, now); err != nil {
			return err
		}
		res, err := tx.Exec(`
			UPDATE thoughts SET status = 'expressed', expressed_via = ?, expressed_at = ?
			WHERE id = ? AND status = 'active'`,
			a.Channel, now, a.ThoughtID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("thought %s is not active", a.ThoughtID)
		}
		return nil
	})
}

// RecordDeliveryFailure writes an unsuccessful attempt after a channel send
// failed; the thought remains active for re-routing.
func (s *Store) RecordDeliveryFailure(a *ExpressionAttempt, now time.Time) error {
	a.Success = false
	a.SuppressReason = SuppressNone
	return s.InTx(func(tx *sql.Tx) error {
		return insertAttemptTx(tx, a, now)
	})
}

func insertAttemptTx(tx *sql.Tx, a *ExpressionAttempt, now time.Time) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.SuppressReason == "" {
		a.SuppressReason = SuppressNone
	}
	if a.UserResponse == "" {
		a.UserResponse = ResponseUnknown
	}
	_, err := tx.Exec(`
		INSERT INTO expression_attempts (id, thought_id, category, channel, message_sent,
			message_hash, success, suppress_reason, detected_user_state,
			motivation_score, user_response, effectiveness_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ThoughtID, a.Category, a.Channel, a.MessageSent,
		HashContent(NormalizeContent(a.MessageSent)), a.Success, string(a.SuppressReason),
		nullString(a.DetectedUserState), a.MotivationScore, string(a.UserResponse),
		a.EffectivenessScore, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// HasRecentSuccess reports whether a successful attempt with the same
// normalized content exists after the cutoff (the duplicate gate).
func (s *Store) HasRecentSuccess(content string, cutoff time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM expression_attempts
		WHERE message_hash = ? AND success = 1 AND created_at >= ?`,
		HashContent(NormalizeContent(content)), cutoff).Scan(&n)
	return n > 0, err
}

// CountSuccessesBetween counts successful external attempts of a category in
// [from, to) — used for daily caps evaluated against the same snapshot as the
// emission decision.
func (s *Store) CountSuccessesBetween(category string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM expression_attempts
		WHERE category = ? AND success = 1 AND channel != 'ui'
			AND created_at >= ? AND created_at < ?`,
		category, from, to).Scan(&n)
	return n, err
}

// LastSuccessAt returns the most recent successful external attempt time for
// a category, or nil.
func (s *Store) LastSuccessAt(category string) (*time.Time, error) {
	var t time.Time
	err := s.db.QueryRow(`
		SELECT created_at FROM expression_attempts
		WHERE category = ? AND success = 1 AND channel != 'ui'
		ORDER BY created_at DESC LIMIT 1`, category).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SuccessfulAttemptForThought fetches the single success row for a thought.
func (s *Store) SuccessfulAttemptForThought(thoughtID string) (*ExpressionAttempt, error) {
	rows, err := s.db.Query(attemptSelect+` WHERE thought_id = ? AND success = 1`, thoughtID)
	if err != nil {
		return nil, err
	}
	list, err := scanAttempts(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, sql.ErrNoRows
	}
	return list[0], nil
}

// RecentAttempts returns attempts created after cutoff, newest first.
func (s *Store) RecentAttempts(cutoff time.Time, limit int) ([]*ExpressionAttempt, error) {
	rows, err := s.db.Query(attemptSelect+`
		WHERE created_at >= ? ORDER BY created_at DESC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return scanAttempts(rows)
}

// UnscoredSuccesses returns successful attempts with no reward signal yet.
func (s *Store) UnscoredSuccesses(cutoff time.Time, limit int) ([]*ExpressionAttempt, error) {
	rows, err := s.db.Query(attemptSelect+`
		WHERE success = 1 AND created_at >= ?
			AND id NOT IN (SELECT attempt_id FROM reward_signals)
		ORDER BY created_at ASC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return scanAttempts(rows)
}

// SetAttemptResponse records the observed user response and effectiveness.
func (s *Store) SetAttemptResponse(attemptID string, resp UserResponse, effectiveness float64) error {
	_, err := s.db.Exec(`
		UPDATE expression_attempts SET user_response = ?, effectiveness_score = ?
		WHERE id = ?`, string(resp), effectiveness, attemptID)
	return err
}

const attemptSelect = `
	SELECT id, thought_id, category, channel, message_sent, success, suppress_reason,
		detected_user_state, motivation_score, user_response, effectiveness_score, created_at
	FROM expression_attempts`

func scanAttempts(rows *sql.Rows) ([]*ExpressionAttempt, error) {
	defer rows.Close()
	var out []*ExpressionAttempt
	for rows.Next() {
		a := &ExpressionAttempt{}
		var reason, resp string
		var state sql.NullString
		if err := rows.Scan(&a.ID, &a.ThoughtID, &a.Category, &a.Channel, &a.MessageSent,
			&a.Success, &reason, &state, &a.MotivationScore, &resp,
			&a.EffectivenessScore, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.SuppressReason = SuppressReason(reason)
		a.UserResponse = UserResponse(resp)
		a.DetectedUserState = state.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// Enqueue parks a thought for the UI in one transaction: the queued row
// stays pending until the UI polls it, while a successful ExpressionAttempt
// on the internal ui channel records the delivery. The thought advances to
// expressed only because that attempt exists, so the one-success-per-
// expressed invariant holds for UI-routed thoughts too and the reward
// aggregator can see them.
func (s *Store) Enqueue(q *QueuedExpression, now time.Time) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	if q.Status == "" {
		q.Status = QueuePending
	}
	if q.UserResponse == "" {
		q.UserResponse = ResponseUnknown
	}
	return s.InTx(func(tx *sql.Tx) error {
		var motivation float64
		if err := tx.QueryRow(
			`SELECT motivation_score FROM thoughts WHERE id = ?`, q.ThoughtID).Scan(&motivation); err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}
		var prior int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM expression_attempts WHERE thought_id = ? AND success = 1`,
			q.ThoughtID).Scan(&prior); err != nil {
			return err
		}
		if prior > 0 {
			return fmt.Errorf("thought %s already has a successful attempt", q.ThoughtID)
		}

		_, err := tx.Exec(`
			INSERT INTO queued_expressions (id, thought_id, category, message, status,
				shown_at, user_response, effectiveness_score, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, q.ThoughtID, q.Category, q.Message, string(q.Status),
			nullTime(q.ShownAt), string(q.UserResponse), q.EffectivenessScore, q.CreatedAt)
		if err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}

		if err := insertAttemptTx(tx, &ExpressionAttempt{
			ThoughtID:       q.ThoughtID,
			Category:        q.Category,
			Channel:         "ui",
			MessageSent:     q.Message,
			Success:         true,
			MotivationScore: motivation,
		}, now); err != nil {
			return err
		}

		res, err := tx.Exec(`
			UPDATE thoughts SET status = 'expressed', expressed_via = 'ui', expressed_at = ?
			WHERE id = ? AND status = 'active'`, now, q.ThoughtID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("thought %s is not active", q.ThoughtID)
		}
		return nil
	})
}

// PendingQueue returns pending queued expressions, oldest first.
func (s *Store) PendingQueue(limit int) ([]*QueuedExpression, error) {
	rows, err := s.db.Query(`
		SELECT id, thought_id, category, message, status, shown_at, user_response,
			effectiveness_score, created_at
		FROM queued_expressions WHERE status = 'pending'
		ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*QueuedExpression
	for rows.Next() {
		q := &QueuedExpression{}
		var status, resp string
		var shownAt sql.NullTime
		if err := rows.Scan(&q.ID, &q.ThoughtID, &q.Category, &q.Message, &status,
			&shownAt, &resp, &q.EffectivenessScore, &q.CreatedAt); err != nil {
			return nil, err
		}
		q.Status = QueueStatus(status)
		q.UserResponse = UserResponse(resp)
		q.ShownAt = scanNullTime(shownAt)
		out = append(out, q)
	}
	return out, rows.Err()
}

// MarkQueueShown advances a queued expression to shown.
func (s *Store) MarkQueueShown(id string, now time.Time) error {
	_, err := s.db.Exec(`
		UPDATE queued_expressions SET status = 'shown', shown_at = ?
		WHERE id = ? AND status = 'pending'`, now, id)
	return err
}

// SetQueueResponse records the UI-reported user response.
func (s *Store) SetQueueResponse(id string, resp UserResponse, effectiveness float64) error {
	_, err := s.db.Exec(`
		UPDATE queued_expressions SET user_response = ?, effectiveness_score = ?
		WHERE id = ?`, string(resp), effectiveness, id)
	return err
}

// ExpireQueued expires pending queued expressions older than the cutoff.
func (s *Store) ExpireQueued(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE queued_expressions SET status = 'expired'
		WHERE status = 'pending' AND created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// InsertCritique writes one self-critique evaluation row.
func (s *Store) InsertCritique(c *CritiqueResult, now time.Time) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO thought_critique_log (id, thought_id, honesty, memory_reference,
			empathy, accuracy, love, quality_score, uncertainty, verification_passed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ThoughtID, c.Honesty, c.MemoryReference, c.Empathy, c.Accuracy,
		c.Love, c.QualityScore, c.Uncertainty, c.VerificationPassed, c.CreatedAt)
	return err
}

// LatestCritique returns the most recent critique row for a thought, or nil.
func (s *Store) LatestCritique(thoughtID string) (*CritiqueResult, error) {
	c := &CritiqueResult{}
	err := s.db.QueryRow(`
		SELECT id, thought_id, honesty, memory_reference, empathy, accuracy, love,
			quality_score, uncertainty, verification_passed, created_at
		FROM thought_critique_log WHERE thought_id = ?
		ORDER BY created_at DESC LIMIT 1`, thoughtID).
		Scan(&c.ID, &c.ThoughtID, &c.Honesty, &c.MemoryReference, &c.Empathy,
			&c.Accuracy, &c.Love, &c.QualityScore, &c.Uncertainty,
			&c.VerificationPassed, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
