package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertThought persists a thought and marks its source stimuli acted upon,
// all in one transaction so no stimulus is orphaned mid-write.
func (s *Store) InsertThought(t *Thought, now time.Time) error {
	return s.InTx(func(tx *sql.Tx) error {
		if err := insertThoughtTx(tx, t, now); err != nil {
			return err
		}
		for _, sid := range t.StimulusIDs {
			if err := MarkActedUpon(tx, sid); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertThoughtTx(tx *sql.Tx, t *Thought, now time.Time) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.Status == "" {
		t.Status = ThoughtActive
	}
	_, err := tx.Exec(`
		INSERT INTO thoughts (id, type, category, content, content_hash, stimulus_ids,
			memory_context, motivation_score, motivation_breakdown, status,
			evolved_from, expressed_via, expressed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Type), t.Category, t.Content, HashContent(NormalizeContent(t.Content)),
		marshalJSON(t.StimulusIDs), marshalJSON(t.MemoryContext),
		t.MotivationScore, marshalJSON(t.Motivation), string(t.Status),
		nullString(t.EvolvedFrom), nullString(t.ExpressedVia), nullTime(t.ExpressedAt), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert thought: %w", err)
	}
	return nil
}

// EvolveThought atomically supersedes a still-active parent with a
// higher-motivation child. The parent moves to status evolved; the child
// records its ancestry and inherits the parent's stimuli marks.
func (s *Store) EvolveThought(parentID string, child *Thought, now time.Time) error {
	return s.InTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE thoughts SET status = ? WHERE id = ? AND status = ?`,
			string(ThoughtEvolved), parentID, string(ThoughtActive))
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("parent thought %s is not active", parentID)
		}
		child.EvolvedFrom = parentID
		return insertThoughtTx(tx, child, now)
	})
}

// ActiveThoughts returns active thoughts ordered by motivation descending.
func (s *Store) ActiveThoughts(limit int) ([]*Thought, error) {
	rows, err := s.db.Query(thoughtSelect+`
		WHERE status = 'active'
		ORDER BY motivation_score DESC, created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanThoughts(rows)
}

// RecentThoughts returns thoughts created after cutoff, newest first.
func (s *Store) RecentThoughts(cutoff time.Time, limit int) ([]*Thought, error) {
	rows, err := s.db.Query(thoughtSelect+`
		WHERE created_at >= ?
		ORDER BY created_at DESC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return scanThoughts(rows)
}

// GetThought fetches one thought by id.
func (s *Store) GetThought(id string) (*Thought, error) {
	rows, err := s.db.Query(thoughtSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	list, err := scanThoughts(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, sql.ErrNoRows
	}
	return list[0], nil
}

// DecayIdleThoughts transitions active thoughts older than the horizon to
// decayed. Returns the number decayed.
func (s *Store) DecayIdleThoughts(horizon time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE thoughts SET status = 'decayed'
		WHERE status = 'active' AND created_at < ?`, horizon)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ThoughtsReferencingStimulus counts thoughts whose stimulus set contains the id.
func (s *Store) ThoughtsReferencingStimulus(stimulusID string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM thoughts
		WHERE stimulus_ids LIKE '%' || ? || '%'`, stimulusID).Scan(&n)
	return n, err
}

const thoughtSelect = `
	SELECT id, type, category, content, stimulus_ids, memory_context,
		motivation_score, motivation_breakdown, status, evolved_from,
		expressed_via, expressed_at, created_at
	FROM thoughts`

func scanThoughts(rows *sql.Rows) ([]*Thought, error) {
	defer rows.Close()
	var out []*Thought
	for rows.Next() {
		t := &Thought{}
		var typ, status string
		var stimIDs, memCtx, breakdown, evolvedFrom, expressedVia sql.NullString
		var expressedAt sql.NullTime
		if err := rows.Scan(&t.ID, &typ, &t.Category, &t.Content, &stimIDs, &memCtx,
			&t.MotivationScore, &breakdown, &status, &evolvedFrom,
			&expressedVia, &expressedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = ThoughtType(typ)
		t.Status = ThoughtStatus(status)
		unmarshalJSON(stimIDs, &t.StimulusIDs)
		unmarshalJSON(memCtx, &t.MemoryContext)
		unmarshalJSON(breakdown, &t.Motivation)
		t.EvolvedFrom = evolvedFrom.String
		t.ExpressedVia = expressedVia.String
		t.ExpressedAt = scanNullTime(expressedAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
