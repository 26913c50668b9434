package store

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// HashContent returns the blake3 content hash used for dedup keys.
func HashContent(content string) string {
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// InsertStimuli persists a batch of freshly emitted stimuli in one
// transaction, deduplicating against unacted rows with the same source and
// content hash. Returns the stimuli actually inserted.
func (s *Store) InsertStimuli(batch []*Stimulus, now time.Time) ([]*Stimulus, error) {
	var inserted []*Stimulus
	err := s.InTx(func(tx *sql.Tx) error {
		for _, st := range batch {
			hash := HashContent(st.Content)
			var existing string
			err := tx.QueryRow(
				`SELECT id FROM stimuli WHERE source = ? AND content_hash = ? AND acted_upon = 0`,
				st.Source, hash).Scan(&existing)
			if err == nil {
				continue // duplicate of a pending stimulus
			}
			if err != sql.ErrNoRows {
				return fmt.Errorf("dedup check: %w", err)
			}
			if st.ID == "" {
				st.ID = uuid.NewString()
			}
			if st.CreatedAt.IsZero() {
				st.CreatedAt = now
			}
			_, err = tx.Exec(`
				INSERT INTO stimuli (id, type, content, content_hash, source, raw_data, embedding,
					salience_score, salience_breakdown, scored, acted_upon, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				st.ID, string(st.Type), st.Content, hash, st.Source,
				marshalJSON(st.RawData), marshalJSON(st.Embedding),
				st.SalienceScore, marshalJSON(st.SalienceBreakdown),
				st.Scored, st.ActedUpon, st.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert stimulus: %w", err)
			}
			inserted = append(inserted, st)
		}
		return nil
	})
	return inserted, err
}

// UpdateSalience stores the computed score and breakdown for a stimulus.
func (s *Store) UpdateSalience(id string, score float64, breakdown map[string]float64, embedding []float64) error {
	_, err := s.db.Exec(`
		UPDATE stimuli SET salience_score = ?, salience_breakdown = ?, embedding = COALESCE(?, embedding), scored = 1
		WHERE id = ?`,
		score, marshalJSON(breakdown), marshalJSON(embedding), id)
	return err
}

// UnscoredStimuli returns stimuli awaiting salience scoring.
func (s *Store) UnscoredStimuli(limit int) ([]*Stimulus, error) {
	rows, err := s.db.Query(`
		SELECT id, type, content, source, raw_data, embedding, salience_score,
			salience_breakdown, scored, acted_upon, created_at
		FROM stimuli WHERE scored = 0 AND acted_upon = 0
		ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanStimuli(rows)
}

// TopUnactedStimuli returns the top-k scored, unacted stimuli by salience.
func (s *Store) TopUnactedStimuli(k int) ([]*Stimulus, error) {
	rows, err := s.db.Query(`
		SELECT id, type, content, source, raw_data, embedding, salience_score,
			salience_breakdown, scored, acted_upon, created_at
		FROM stimuli WHERE scored = 1 AND acted_upon = 0
		ORDER BY salience_score DESC, created_at ASC LIMIT ?`, k)
	if err != nil {
		return nil, err
	}
	return scanStimuli(rows)
}

// RecentStimuli returns stimuli created after the cutoff, newest first.
func (s *Store) RecentStimuli(cutoff time.Time, limit int) ([]*Stimulus, error) {
	rows, err := s.db.Query(`
		SELECT id, type, content, source, raw_data, embedding, salience_score,
			salience_breakdown, scored, acted_upon, created_at
		FROM stimuli WHERE created_at >= ?
		ORDER BY created_at DESC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return scanStimuli(rows)
}

// MarkActedUpon flips acted_upon inside tx.
func MarkActedUpon(tx *sql.Tx, stimulusID string) error {
	_, err := tx.Exec(`UPDATE stimuli SET acted_upon = 1 WHERE id = ?`, stimulusID)
	return err
}

// LogFilteredStimulus records a stimulus that was marked acted_upon without
// producing a thought, keeping the acted-upon invariant auditable.
func LogFilteredStimulus(tx *sql.Tx, stimulusID, reason string, now time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO stimulus_filter_log (id, stimulus_id, reason, created_at)
		VALUES (?, ?, ?, ?)`,
		uuid.NewString(), stimulusID, reason, now)
	return err
}

// MarkFiltered flips acted_upon and records a filter entry in one
// transaction, so the acted-upon invariant holds for stimuli that produced
// no thought.
func (s *Store) MarkFiltered(stimulusID, reason string, now time.Time) error {
	return s.InTx(func(tx *sql.Tx) error {
		if err := MarkActedUpon(tx, stimulusID); err != nil {
			return err
		}
		return LogFilteredStimulus(tx, stimulusID, reason, now)
	})
}

// FilteredStimulusExists reports whether a filter record exists for the stimulus.
func (s *Store) FilteredStimulusExists(stimulusID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM stimulus_filter_log WHERE stimulus_id = ?`, stimulusID).Scan(&n)
	return n > 0, err
}

// GetStimulus fetches one stimulus by id.
func (s *Store) GetStimulus(id string) (*Stimulus, error) {
	rows, err := s.db.Query(`
		SELECT id, type, content, source, raw_data, embedding, salience_score,
			salience_breakdown, scored, acted_upon, created_at
		FROM stimuli WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	list, err := scanStimuli(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, sql.ErrNoRows
	}
	return list[0], nil
}

func scanStimuli(rows *sql.Rows) ([]*Stimulus, error) {
	defer rows.Close()
	var out []*Stimulus
	for rows.Next() {
		st := &Stimulus{}
		var typ string
		var raw, emb, breakdown sql.NullString
		if err := rows.Scan(&st.ID, &typ, &st.Content, &st.Source, &raw, &emb,
			&st.SalienceScore, &breakdown, &st.Scored, &st.ActedUpon, &st.CreatedAt); err != nil {
			return nil, err
		}
		st.Type = StimulusType(typ)
		unmarshalJSON(raw, &st.RawData)
		unmarshalJSON(emb, &st.Embedding)
		unmarshalJSON(breakdown, &st.SalienceBreakdown)
		out = append(out, st)
	}
	return out, rows.Err()
}
