package store

import (
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceSetHash derives the consolidation dedup key from an id set. Order
// does not matter: two runs over the same cluster hash identically.
func SourceSetHash(sourceIDs []string) string {
	sorted := append([]string(nil), sourceIDs...)
	sort.Strings(sorted)
	return HashContent(strings.Join(sorted, "\n"))
}

// InsertConsolidation writes one cluster abstraction. Re-running over the
// same source set is a no-op (returns false).
func (s *Store) InsertConsolidation(e *ConsolidationEntry, now time.Time) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.SourceSetHash == "" {
		e.SourceSetHash = SourceSetHash(e.SourceIDs)
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO consolidation_log (id, source_type, source_count, topic_cluster,
			abstraction, target_type, target_id, confidence, source_ids, source_set_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceType, e.SourceCount, nullString(e.TopicCluster), e.Abstraction,
		e.TargetType, nullString(e.TargetID), e.Confidence, marshalJSON(e.SourceIDs),
		e.SourceSetHash, e.CreatedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ConsolidationExists reports whether the source set was already consolidated.
func (s *Store) ConsolidationExists(sourceIDs []string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM consolidation_log WHERE source_set_hash = ?`,
		SourceSetHash(sourceIDs)).Scan(&n)
	return n > 0, err
}

// CountConsolidations returns the total consolidation-log row count.
func (s *Store) CountConsolidations() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM consolidation_log`).Scan(&n)
	return n, err
}

// InsertReflection persists a reflection.
func (s *Store) InsertReflection(r *Reflection, now time.Time) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.Status == "" {
		r.Status = ReflectionActive
	}
	if r.DepthLevel < 1 {
		r.DepthLevel = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO reflections (id, type, content, trigger_summary, importance_sum,
			source_thought_ids, source_emotion_ids, depth_level, parent_reflection_id,
			status, integrated_into, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Type), r.Content, nullString(r.TriggerSummary), r.ImportanceSum,
		marshalJSON(r.SourceThoughtIDs), marshalJSON(r.SourceEmotionIDs), r.DepthLevel,
		nullString(r.ParentReflectionID), string(r.Status), nullString(r.IntegratedInto),
		r.CreatedAt)
	return err
}

// ActiveReflections returns active reflections, newest first.
func (s *Store) ActiveReflections(limit int) ([]*Reflection, error) {
	rows, err := s.db.Query(`
		SELECT id, type, content, trigger_summary, importance_sum, source_thought_ids,
			source_emotion_ids, depth_level, parent_reflection_id, status, integrated_into, created_at
		FROM reflections WHERE status = 'active'
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Reflection
	for rows.Next() {
		r := &Reflection{}
		var typ, status string
		var trigger, thoughtIDs, emotionIDs, parent, integrated sql.NullString
		if err := rows.Scan(&r.ID, &typ, &r.Content, &trigger, &r.ImportanceSum,
			&thoughtIDs, &emotionIDs, &r.DepthLevel, &parent, &status, &integrated,
			&r.CreatedAt); err != nil {
			return nil, err
		}
		r.Type = ReflectionType(typ)
		r.Status = ReflectionStatus(status)
		r.TriggerSummary = trigger.String
		r.ParentReflectionID = parent.String
		r.IntegratedInto = integrated.String
		unmarshalJSON(thoughtIDs, &r.SourceThoughtIDs)
		unmarshalJSON(emotionIDs, &r.SourceEmotionIDs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// IntegrateReflection marks a reflection as absorbed into a knowledge node.
func (s *Store) IntegrateReflection(reflectionID, knowledgeNodeID string) error {
	_, err := s.db.Exec(`
		UPDATE reflections SET status = 'integrated', integrated_into = ?
		WHERE id = ? AND status = 'active'`, knowledgeNodeID, reflectionID)
	return err
}
