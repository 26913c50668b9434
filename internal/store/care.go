package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// InsertCareState records a wellbeing snapshot with its validity interval.
func (s *Store) InsertCareState(c *CareState) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO care_states (id, energy, stress, sleep, fatigue, wellbeing,
			detected_state, context, valid_from, valid_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Energy, c.Stress, c.Sleep, c.Fatigue, c.Wellbeing,
		nullString(c.DetectedState), nullString(c.Context), c.ValidFrom, c.ValidUntil)
	return err
}

// CurrentCareState returns the snapshot valid at now, or nil when none is.
func (s *Store) CurrentCareState(now time.Time) (*CareState, error) {
	c := &CareState{}
	var state, context sql.NullString
	err := s.db.QueryRow(`
		SELECT id, energy, stress, sleep, fatigue, wellbeing, detected_state, context,
			valid_from, valid_until
		FROM care_states WHERE valid_from <= ? AND valid_until > ?
		ORDER BY valid_from DESC LIMIT 1`, now, now).
		Scan(&c.ID, &c.Energy, &c.Stress, &c.Sleep, &c.Fatigue, &c.Wellbeing,
			&state, &context, &c.ValidFrom, &c.ValidUntil)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.DetectedState = state.String
	c.Context = context.String
	return c, nil
}
