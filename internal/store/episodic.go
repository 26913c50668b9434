package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddEmotion logs one emotional observation.
func (s *Store) AddEmotion(e *Emotion, now time.Time) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO emotions (id, label, valence, intensity, trigger, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Label, e.Valence, e.Intensity, nullString(e.Trigger), e.CreatedAt)
	return err
}

// RecentEmotions returns emotions after cutoff, newest first.
func (s *Store) RecentEmotions(cutoff time.Time, limit int) ([]*Emotion, error) {
	rows, err := s.db.Query(`
		SELECT id, label, valence, intensity, trigger, created_at
		FROM emotions WHERE created_at >= ?
		ORDER BY created_at DESC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Emotion
	for rows.Next() {
		e := &Emotion{}
		var trigger sql.NullString
		if err := rows.Scan(&e.ID, &e.Label, &e.Valence, &e.Intensity, &trigger, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Trigger = trigger.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddConversationTurn logs one message of a conversation.
func (s *Store) AddConversationTurn(c *ConversationTurn, now time.Time) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, conversation_id, role, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.ConversationID, c.Role, c.Content, marshalJSON(c.Embedding), c.CreatedAt)
	return err
}

// RecentConversationTurns returns turns after cutoff, oldest first.
func (s *Store) RecentConversationTurns(cutoff time.Time, limit int) ([]*ConversationTurn, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, role, content, embedding, created_at
		FROM conversations WHERE created_at >= ?
		ORDER BY created_at ASC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return scanTurns(rows)
}

// TurnsAfter returns turns in one conversation after a point in time.
func (s *Store) TurnsAfter(conversationID string, after time.Time, limit int) ([]*ConversationTurn, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, role, content, embedding, created_at
		FROM conversations WHERE conversation_id = ? AND created_at > ?
		ORDER BY created_at ASC LIMIT ?`, conversationID, after, limit)
	if err != nil {
		return nil, err
	}
	return scanTurns(rows)
}

// UserTurnsAfter returns user-authored turns (any conversation) after a point
// in time — used to tie replies back to expression attempts.
func (s *Store) UserTurnsAfter(after time.Time, limit int) ([]*ConversationTurn, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, role, content, embedding, created_at
		FROM conversations WHERE role = 'user' AND created_at > ?
		ORDER BY created_at ASC LIMIT ?`, after, limit)
	if err != nil {
		return nil, err
	}
	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]*ConversationTurn, error) {
	defer rows.Close()
	var out []*ConversationTurn
	for rows.Next() {
		c := &ConversationTurn{}
		var emb sql.NullString
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.Role, &c.Content, &emb, &c.CreatedAt); err != nil {
			return nil, err
		}
		unmarshalJSON(emb, &c.Embedding)
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddGoal inserts or replaces a goal row.
func (s *Store) AddGoal(g *Goal, now time.Time) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	if g.Status == "" {
		g.Status = "active"
	}
	_, err := s.db.Exec(`
		INSERT INTO goals (id, title, status, priority, deadline, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, status = excluded.status,
			priority = excluded.priority, deadline = excluded.deadline`,
		g.ID, g.Title, g.Status, g.Priority, nullTime(g.Deadline), g.CreatedAt)
	return err
}

// ActiveGoals returns goals with status active, highest priority first.
func (s *Store) ActiveGoals() ([]*Goal, error) {
	rows, err := s.db.Query(`
		SELECT id, title, status, priority, deadline, created_at
		FROM goals WHERE status = 'active'
		ORDER BY priority ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Goal
	for rows.Next() {
		g := &Goal{}
		var deadline sql.NullTime
		if err := rows.Scan(&g.ID, &g.Title, &g.Status, &g.Priority, &deadline, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.Deadline = scanNullTime(deadline)
		out = append(out, g)
	}
	return out, rows.Err()
}

// AddCalendarEvent inserts or replaces a synced calendar row.
func (s *Store) AddCalendarEvent(ev *CalendarEvent, now time.Time) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO calendar_events (id, title, starts_at, ends_at, location, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, starts_at = excluded.starts_at,
			ends_at = excluded.ends_at, location = excluded.location`,
		ev.ID, ev.Title, ev.StartsAt, ev.EndsAt, nullString(ev.Location), ev.CreatedAt)
	return err
}

// UpcomingEvents returns events starting in [from, to).
func (s *Store) UpcomingEvents(from, to time.Time) ([]*CalendarEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, title, starts_at, ends_at, location, created_at
		FROM calendar_events WHERE starts_at >= ? AND starts_at < ?
		ORDER BY starts_at ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*CalendarEvent
	for rows.Next() {
		ev := &CalendarEvent{}
		var loc sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Title, &ev.StartsAt, &ev.EndsAt, &loc, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Location = loc.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

// EventsOnDay returns calendar events whose start date falls on the given
// month and day in any year (anniversary lookups).
func (s *Store) EventsOnDay(month time.Month, day int) ([]*CalendarEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, title, starts_at, ends_at, location, created_at
		FROM calendar_events
		WHERE strftime('%m-%d', starts_at) = ?
		ORDER BY starts_at ASC`, fmt.Sprintf("%02d-%02d", int(month), day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*CalendarEvent
	for rows.Next() {
		ev := &CalendarEvent{}
		var loc sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Title, &ev.StartsAt, &ev.EndsAt, &loc, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Location = loc.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

// UpsertKnowledgeNode inserts or refreshes a knowledge node.
func (s *Store) UpsertKnowledgeNode(k *KnowledgeNode, now time.Time) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = now
	}
	k.UpdatedAt = now
	_, err := s.db.Exec(`
		INSERT INTO knowledge_nodes (id, topic, content, embedding, confidence, source_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content,
			embedding = COALESCE(excluded.embedding, knowledge_nodes.embedding),
			confidence = excluded.confidence, source_count = excluded.source_count,
			updated_at = excluded.updated_at`,
		k.ID, k.Topic, k.Content, marshalJSON(k.Embedding), k.Confidence,
		k.SourceCount, k.CreatedAt, k.UpdatedAt)
	return err
}

// GetKnowledgeNode fetches one knowledge node by id.
func (s *Store) GetKnowledgeNode(id string) (*KnowledgeNode, error) {
	k := &KnowledgeNode{}
	var emb sql.NullString
	err := s.db.QueryRow(`
		SELECT id, topic, content, embedding, confidence, source_count, created_at, updated_at
		FROM knowledge_nodes WHERE id = ?`, id).
		Scan(&k.ID, &k.Topic, &k.Content, &emb, &k.Confidence, &k.SourceCount,
			&k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	unmarshalJSON(emb, &k.Embedding)
	return k, nil
}
