package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// InsertRewardSignal persists one combined reward row.
func (s *Store) InsertRewardSignal(r *RewardSignal, now time.Time) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ScoredAt.IsZero() {
		r.ScoredAt = now
	}
	if r.ImplicitClassification == "" {
		r.ImplicitClassification = "neutral"
	}
	_, err := s.db.Exec(`
		INSERT INTO reward_signals (id, attempt_id, conversation_id, explicit_score,
			implicit_score, self_eval_score, combined_reward, explicit_source,
			implicit_classification, principles_evaluated, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AttemptID, nullString(r.ConversationID),
		nullFloat(r.ExplicitScore), nullFloat(r.ImplicitScore), nullFloat(r.SelfEvalScore),
		r.CombinedReward, nullString(r.ExplicitSource), r.ImplicitClassification,
		marshalJSON(r.PrinciplesEvaluated), r.ScoredAt)
	return err
}

// RewardsSince returns reward signals scored after the cutoff, oldest first.
func (s *Store) RewardsSince(cutoff time.Time) ([]*RewardSignal, error) {
	rows, err := s.db.Query(`
		SELECT id, attempt_id, conversation_id, explicit_score, implicit_score,
			self_eval_score, combined_reward, explicit_source, implicit_classification,
			principles_evaluated, scored_at
		FROM reward_signals WHERE scored_at >= ?
		ORDER BY scored_at ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*RewardSignal
	for rows.Next() {
		r := &RewardSignal{}
		var convID, source, principles sql.NullString
		var explicit, implicit, selfEval sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.AttemptID, &convID, &explicit, &implicit,
			&selfEval, &r.CombinedReward, &source, &r.ImplicitClassification,
			&principles, &r.ScoredAt); err != nil {
			return nil, err
		}
		r.ConversationID = convID.String
		r.ExplicitSource = source.String
		r.ExplicitScore = scanNullFloat(explicit)
		r.ImplicitScore = scanNullFloat(implicit)
		r.SelfEvalScore = scanNullFloat(selfEval)
		unmarshalJSON(principles, &r.PrinciplesEvaluated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRewardForAttempt returns the reward row for one attempt, or nil.
func (s *Store) GetRewardForAttempt(attemptID string) (*RewardSignal, error) {
	list, err := s.rewardsWhere(`attempt_id = ?`, attemptID)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (s *Store) rewardsWhere(where string, args ...any) ([]*RewardSignal, error) {
	rows, err := s.db.Query(`
		SELECT id, attempt_id, conversation_id, explicit_score, implicit_score,
			self_eval_score, combined_reward, explicit_source, implicit_classification,
			principles_evaluated, scored_at
		FROM reward_signals WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*RewardSignal
	for rows.Next() {
		r := &RewardSignal{}
		var convID, source, principles sql.NullString
		var explicit, implicit, selfEval sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.AttemptID, &convID, &explicit, &implicit,
			&selfEval, &r.CombinedReward, &source, &r.ImplicitClassification,
			&principles, &r.ScoredAt); err != nil {
			return nil, err
		}
		r.ConversationID = convID.String
		r.ExplicitSource = source.String
		r.ExplicitScore = scanNullFloat(explicit)
		r.ImplicitScore = scanNullFloat(implicit)
		r.SelfEvalScore = scanNullFloat(selfEval)
		unmarshalJSON(principles, &r.PrinciplesEvaluated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertPreferencePair records a correction as a preference pair.
func (s *Store) InsertPreferencePair(p *PreferencePair, now time.Time) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO preference_pairs (id, user_message, preferred_response,
			rejected_response, preference_strength, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserMessage, p.PreferredResponse, p.RejectedResponse,
		p.PreferenceStrength, p.CreatedAt)
	return err
}

// InsertTuningChange audits one evolution knob adjustment.
func (s *Store) InsertTuningChange(t *TuningChange, now time.Time) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO tuning_changes (id, knob, before, after, evidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Knob, t.Before, t.After, nullString(t.Evidence), t.CreatedAt)
	return err
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func scanNullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}
