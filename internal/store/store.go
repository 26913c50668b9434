// Package store is the durable relational state shared by every component.
// SQLite with the sqlite-vec extension provides transactions and cosine
// similarity search over embedding columns.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mwaldron/aura/internal/logging"
)

func init() {
	sqlite_vec.Auto() // registers vec0 and the vec_* SQL functions with go-sqlite3
}

// Store wraps the SQLite database connection.
type Store struct {
	db           *sql.DB
	path         string
	vecAvailable bool
}

// Open opens or creates the database under statePath.
func Open(statePath string) (*Store, error) {
	dbPath := filepath.Join(statePath, "aura.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_loc=auto&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		logging.Info("store", "sqlite-vec not available: %v — similarity falls back to full scan", err)
	} else {
		logging.Info("store", "sqlite-vec %s loaded", vecVersion)
		s.vecAvailable = true
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the store is reachable. The driver's degraded state
// polls this before attempting writes again.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// InTx runs fn inside a single immediate (write-locked) transaction. All
// multi-row mutations that participate in invariants go through here so the
// decision and its writes see one logical snapshot.
func (s *Store) InTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// migrate runs schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stimuli (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		source TEXT NOT NULL,
		raw_data TEXT,
		embedding TEXT,
		salience_score REAL NOT NULL DEFAULT 0,
		salience_breakdown TEXT,
		scored INTEGER NOT NULL DEFAULT 0,
		acted_upon INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stimuli_unacted ON stimuli(acted_upon, salience_score);
	CREATE INDEX IF NOT EXISTS idx_stimuli_created ON stimuli(created_at);
	CREATE INDEX IF NOT EXISTS idx_stimuli_hash ON stimuli(source, content_hash);

	CREATE TABLE IF NOT EXISTS stimulus_filter_log (
		id TEXT PRIMARY KEY,
		stimulus_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS thoughts (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		category TEXT NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		stimulus_ids TEXT,
		memory_context TEXT,
		motivation_score REAL NOT NULL DEFAULT 0,
		motivation_breakdown TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		evolved_from TEXT,
		expressed_via TEXT,
		expressed_at DATETIME,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_thoughts_status ON thoughts(status, motivation_score);
	CREATE INDEX IF NOT EXISTS idx_thoughts_created ON thoughts(created_at);

	CREATE TABLE IF NOT EXISTS expression_attempts (
		id TEXT PRIMARY KEY,
		thought_id TEXT NOT NULL,
		category TEXT NOT NULL,
		channel TEXT NOT NULL,
		message_sent TEXT,
		message_hash TEXT,
		success INTEGER NOT NULL DEFAULT 0,
		suppress_reason TEXT NOT NULL DEFAULT 'none',
		detected_user_state TEXT,
		motivation_score REAL NOT NULL DEFAULT 0,
		user_response TEXT NOT NULL DEFAULT 'unknown',
		effectiveness_score REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_thought ON expression_attempts(thought_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_day ON expression_attempts(category, success, created_at);
	CREATE INDEX IF NOT EXISTS idx_attempts_hash ON expression_attempts(message_hash, success, created_at);

	CREATE TABLE IF NOT EXISTS queued_expressions (
		id TEXT PRIMARY KEY,
		thought_id TEXT NOT NULL,
		category TEXT NOT NULL,
		message TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		shown_at DATETIME,
		user_response TEXT NOT NULL DEFAULT 'unknown',
		effectiveness_score REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_queue_status ON queued_expressions(status, created_at);

	CREATE TABLE IF NOT EXISTS thought_critique_log (
		id TEXT PRIMARY KEY,
		thought_id TEXT NOT NULL,
		honesty REAL NOT NULL,
		memory_reference REAL NOT NULL,
		empathy REAL NOT NULL,
		accuracy REAL NOT NULL,
		love REAL NOT NULL,
		quality_score REAL NOT NULL,
		uncertainty REAL NOT NULL,
		verification_passed INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_critique_thought ON thought_critique_log(thought_id);

	CREATE TABLE IF NOT EXISTS reflections (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		trigger_summary TEXT,
		importance_sum REAL NOT NULL DEFAULT 0,
		source_thought_ids TEXT,
		source_emotion_ids TEXT,
		depth_level INTEGER NOT NULL DEFAULT 1,
		parent_reflection_id TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		integrated_into TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS consolidation_log (
		id TEXT PRIMARY KEY,
		source_type TEXT NOT NULL,
		source_count INTEGER NOT NULL,
		topic_cluster TEXT,
		abstraction TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		confidence REAL NOT NULL,
		source_ids TEXT NOT NULL,
		source_set_hash TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		family TEXT NOT NULL,
		key TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL,
		confidence REAL NOT NULL,
		support INTEGER NOT NULL DEFAULT 0,
		data TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS predictions (
		id TEXT PRIMARY KEY,
		prediction_type TEXT NOT NULL,
		prediction_text TEXT NOT NULL,
		confidence REAL NOT NULL,
		predicted_time DATETIME NOT NULL,
		based_on_pattern TEXT,
		verified INTEGER NOT NULL DEFAULT 0,
		outcome_correct INTEGER NOT NULL DEFAULT 0,
		verified_at DATETIME,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_due ON predictions(verified, predicted_time);

	CREATE TABLE IF NOT EXISTS reward_signals (
		id TEXT PRIMARY KEY,
		attempt_id TEXT NOT NULL,
		conversation_id TEXT,
		explicit_score REAL,
		implicit_score REAL,
		self_eval_score REAL,
		combined_reward REAL NOT NULL,
		explicit_source TEXT,
		implicit_classification TEXT NOT NULL DEFAULT 'neutral',
		principles_evaluated TEXT,
		scored_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rewards_attempt ON reward_signals(attempt_id);
	CREATE INDEX IF NOT EXISTS idx_rewards_time ON reward_signals(scored_at);

	CREATE TABLE IF NOT EXISTS preference_pairs (
		id TEXT PRIMARY KEY,
		user_message TEXT NOT NULL,
		preferred_response TEXT NOT NULL,
		rejected_response TEXT NOT NULL,
		preference_strength REAL NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		priority INTEGER NOT NULL DEFAULT 0,
		total_steps INTEGER NOT NULL DEFAULT 0,
		completed_steps INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS plan_steps (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL REFERENCES plans(id),
		step_order INTEGER NOT NULL,
		action_type TEXT NOT NULL,
		action_payload TEXT,
		dependencies TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		result_data TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		optional INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_steps_plan ON plan_steps(plan_id, step_order);

	CREATE TABLE IF NOT EXISTS tools (
		name TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		parameters_schema TEXT,
		requires_confirmation INTEGER NOT NULL DEFAULT 0,
		cost_tier INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1,
		total_executions INTEGER NOT NULL DEFAULT 0,
		total_successes INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tool_executions (
		id TEXT PRIMARY KEY,
		tool_name TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		success INTEGER NOT NULL,
		summary TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS care_states (
		id TEXT PRIMARY KEY,
		energy REAL NOT NULL,
		stress REAL NOT NULL,
		sleep REAL NOT NULL,
		fatigue REAL NOT NULL,
		wellbeing REAL NOT NULL,
		detected_state TEXT,
		context TEXT,
		valid_from DATETIME NOT NULL,
		valid_until DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_care_valid ON care_states(valid_from, valid_until);

	CREATE TABLE IF NOT EXISTS health_snapshots (
		id TEXT PRIMARY KEY,
		ok INTEGER NOT NULL,
		degraded_store INTEGER NOT NULL,
		cycle_count INTEGER NOT NULL,
		cycle_start DATETIME NOT NULL,
		cycle_end DATETIME NOT NULL,
		phases TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_health_created ON health_snapshots(created_at);

	CREATE TABLE IF NOT EXISTS tuning_changes (
		id TEXT PRIMARY KEY,
		knob TEXT NOT NULL,
		before REAL NOT NULL,
		after REAL NOT NULL,
		evidence TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS emotions (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		valence REAL NOT NULL,
		intensity REAL NOT NULL,
		trigger TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_emotions_created ON emotions(created_at);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_conv ON conversations(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at);

	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		priority INTEGER NOT NULL DEFAULT 0,
		deadline DATETIME,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS calendar_events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		starts_at DATETIME NOT NULL,
		ends_at DATETIME NOT NULL,
		location TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_calendar_start ON calendar_events(starts_at);

	CREATE TABLE IF NOT EXISTS knowledge_nodes (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT,
		confidence REAL NOT NULL DEFAULT 0,
		source_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Derived dashboards
	CREATE VIEW IF NOT EXISTS prediction_accuracy AS
		SELECT prediction_type,
			COUNT(*) AS verified_count,
			AVG(CASE WHEN outcome_correct THEN 1.0 ELSE 0.0 END) AS accuracy
		FROM predictions WHERE verified = 1
		GROUP BY prediction_type;

	CREATE VIEW IF NOT EXISTS reward_trend AS
		SELECT DATE(scored_at) AS day,
			COUNT(*) AS signals,
			AVG(combined_reward) AS avg_reward
		FROM reward_signals
		GROUP BY DATE(scored_at);

	CREATE VIEW IF NOT EXISTS recent_wellness AS
		SELECT id, wellbeing, detected_state, valid_from, valid_until
		FROM care_states
		ORDER BY valid_from DESC LIMIT 30;
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (1)`)
	return err
}

// marshalJSON encodes v as JSON for a TEXT column; nil-safe.
func marshalJSON(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}

// unmarshalJSON decodes a nullable JSON column into out.
func unmarshalJSON(data sql.NullString, out any) {
	if !data.Valid || data.String == "" {
		return
	}
	_ = json.Unmarshal([]byte(data.String), out)
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func scanNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
