package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// InsertHealthSnapshot records the driver's state after one cycle.
func (s *Store) InsertHealthSnapshot(h *HealthSnapshot, now time.Time) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO health_snapshots (id, ok, degraded_store, cycle_count,
			cycle_start, cycle_end, phases, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.OK, h.DegradedStore, h.CycleCount,
		h.CycleStart, h.CycleEnd, marshalJSON(h.Phases), h.CreatedAt)
	return err
}

// LatestHealthSnapshot returns the most recent snapshot, or nil when the
// driver has not completed a cycle yet.
func (s *Store) LatestHealthSnapshot() (*HealthSnapshot, error) {
	h := &HealthSnapshot{}
	var phases sql.NullString
	err := s.db.QueryRow(`
		SELECT id, ok, degraded_store, cycle_count, cycle_start, cycle_end, phases, created_at
		FROM health_snapshots ORDER BY created_at DESC, cycle_count DESC LIMIT 1`).
		Scan(&h.ID, &h.OK, &h.DegradedStore, &h.CycleCount,
			&h.CycleStart, &h.CycleEnd, &phases, &h.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	unmarshalJSON(phases, &h.Phases)
	return h, nil
}

// PruneHealthSnapshots keeps the table from growing without bound.
func (s *Store) PruneHealthSnapshots(keep int) error {
	_, err := s.db.Exec(`
		DELETE FROM health_snapshots WHERE id NOT IN (
			SELECT id FROM health_snapshots ORDER BY created_at DESC, cycle_count DESC LIMIT ?
		)`, keep)
	return err
}
