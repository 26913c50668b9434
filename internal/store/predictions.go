package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// UpsertPattern inserts a mined pattern or refreshes an existing one with the
// same structural key. Returns the stored pattern id.
func (s *Store) UpsertPattern(p *Pattern, now time.Time) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := s.db.Exec(`
		INSERT INTO patterns (id, family, key, description, confidence, support, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET confidence = excluded.confidence,
			support = excluded.support, description = excluded.description,
			data = excluded.data, updated_at = excluded.updated_at`,
		p.ID, p.Family, p.Key, p.Description, p.Confidence, p.Support,
		marshalJSON(p.Data), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return "", err
	}
	var id string
	if err := s.db.QueryRow(`SELECT id FROM patterns WHERE key = ?`, p.Key).Scan(&id); err != nil {
		return "", err
	}
	p.ID = id
	return id, nil
}

// PatternsByFamily returns stored patterns for one mining family.
func (s *Store) PatternsByFamily(family string) ([]*Pattern, error) {
	rows, err := s.db.Query(`
		SELECT id, family, key, description, confidence, support, data, created_at, updated_at
		FROM patterns WHERE family = ? ORDER BY confidence DESC`, family)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Pattern
	for rows.Next() {
		p := &Pattern{}
		var data sql.NullString
		if err := rows.Scan(&p.ID, &p.Family, &p.Key, &p.Description, &p.Confidence,
			&p.Support, &data, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		unmarshalJSON(data, &p.Data)
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertPrediction persists a forecast. Duplicate open predictions for the
// same pattern and predicted time are skipped; returns whether a row landed.
func (s *Store) InsertPrediction(p *Prediction, now time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM predictions
		WHERE based_on_pattern = ? AND predicted_time = ? AND verified = 0`,
		p.BasedOnPattern, p.PredictedTime).Scan(&n)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	_, err = s.db.Exec(`
		INSERT INTO predictions (id, prediction_type, prediction_text, confidence,
			predicted_time, based_on_pattern, verified, outcome_correct, verified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, NULL, ?)`,
		p.ID, p.Type, p.Text, p.Confidence, p.PredictedTime, nullString(p.BasedOnPattern), p.CreatedAt)
	if err != nil {
		return false, err
	}
	return true, nil
}

// DuePredictions returns unverified predictions whose predicted time has passed.
func (s *Store) DuePredictions(now time.Time, limit int) ([]*Prediction, error) {
	rows, err := s.db.Query(`
		SELECT id, prediction_type, prediction_text, confidence, predicted_time,
			based_on_pattern, verified, outcome_correct, verified_at, created_at
		FROM predictions WHERE verified = 0 AND predicted_time <= ?
		ORDER BY predicted_time ASC LIMIT ?`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Prediction
	for rows.Next() {
		p := &Prediction{}
		var basedOn sql.NullString
		var verifiedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.Type, &p.Text, &p.Confidence, &p.PredictedTime,
			&basedOn, &p.Verified, &p.OutcomeCorrect, &verifiedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.BasedOnPattern = basedOn.String
		p.VerifiedAt = scanNullTime(verifiedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPredictionVerified records a verification outcome.
func (s *Store) MarkPredictionVerified(id string, correct bool, now time.Time) error {
	_, err := s.db.Exec(`
		UPDATE predictions SET verified = 1, outcome_correct = ?, verified_at = ?
		WHERE id = ? AND verified = 0`, correct, now, id)
	return err
}

// PredictionAccuracy is one row of the accuracy dashboard view.
type PredictionAccuracy struct {
	Type     string
	Verified int
	Accuracy float64
}

// AccuracyByType reads the prediction_accuracy view.
func (s *Store) AccuracyByType() ([]PredictionAccuracy, error) {
	rows, err := s.db.Query(`SELECT prediction_type, verified_count, accuracy FROM prediction_accuracy`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PredictionAccuracy
	for rows.Next() {
		var a PredictionAccuracy
		if err := rows.Scan(&a.Type, &a.Verified, &a.Accuracy); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
