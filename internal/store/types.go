package store

import "time"

// StimulusType classifies where a stimulus came from.
type StimulusType string

const (
	StimulusTemporal    StimulusType = "temporal"
	StimulusEmotional   StimulusType = "emotional"
	StimulusPattern     StimulusType = "pattern"
	StimulusCalendar    StimulusType = "calendar"
	StimulusSocial      StimulusType = "social"
	StimulusGoal        StimulusType = "goal"
	StimulusAnniversary StimulusType = "anniversary"
	StimulusOther       StimulusType = "other"
)

// Stimulus is a candidate perception awaiting attention.
type Stimulus struct {
	ID                string             `json:"id"`
	Type              StimulusType       `json:"type"`
	Content           string             `json:"content"`
	Source            string             `json:"source"` // codelet name
	RawData           map[string]any     `json:"raw_data,omitempty"`
	Embedding         []float64          `json:"embedding,omitempty"`
	SalienceScore     float64            `json:"salience_score"`
	SalienceBreakdown map[string]float64 `json:"salience_breakdown,omitempty"`
	Scored            bool               `json:"scored"`
	ActedUpon         bool               `json:"acted_upon"`
	CreatedAt         time.Time          `json:"created_at"`
}

// ThoughtType distinguishes fast template thoughts from deliberative ones.
type ThoughtType string

const (
	ThoughtSystem1 ThoughtType = "system1"
	ThoughtSystem2 ThoughtType = "system2"
)

// ThoughtStatus is the thought lifecycle state.
type ThoughtStatus string

const (
	ThoughtActive    ThoughtStatus = "active"
	ThoughtExpressed ThoughtStatus = "expressed"
	ThoughtDecayed   ThoughtStatus = "decayed"
	ThoughtEvolved   ThoughtStatus = "evolved"
)

// MotivationBreakdown holds the five motivation components.
type MotivationBreakdown struct {
	Relevance   float64 `json:"relevance"`
	Urgency     float64 `json:"urgency"`
	Impact      float64 `json:"impact"`
	Coherence   float64 `json:"coherence"`
	Originality float64 `json:"originality"`
}

// Thought is an internal candidate utterance produced from stimuli.
type Thought struct {
	ID              string              `json:"id"`
	Type            ThoughtType         `json:"type"`
	Category        string              `json:"category"` // inherited from stimulus type or template
	Content         string              `json:"content"`
	StimulusIDs     []string            `json:"stimulus_ids"`
	MemoryContext   map[string]any      `json:"memory_context,omitempty"`
	MotivationScore float64             `json:"motivation_score"`
	Motivation      MotivationBreakdown `json:"motivation_breakdown"`
	Status          ThoughtStatus       `json:"status"`
	EvolvedFrom     string              `json:"evolved_from,omitempty"`
	ExpressedVia    string              `json:"expressed_via,omitempty"`
	ExpressedAt     *time.Time          `json:"expressed_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// SuppressReason records why an expression was withheld.
type SuppressReason string

const (
	SuppressNone        SuppressReason = "none"
	SuppressDuplicate   SuppressReason = "duplicate"
	SuppressRateLimit   SuppressReason = "rate_limit"
	SuppressDND         SuppressReason = "dnd"
	SuppressStateFilter SuppressReason = "state_filter"
	SuppressQuality     SuppressReason = "quality"
)

// UserResponse classifies how the user reacted to an expression.
type UserResponse string

const (
	ResponseEngaged      UserResponse = "engaged"
	ResponseAcknowledged UserResponse = "acknowledged"
	ResponseIgnored      UserResponse = "ignored"
	ResponseDismissed    UserResponse = "dismissed"
	ResponseUnknown      UserResponse = "unknown"
)

// ExpressionAttempt is the durable record of one routing decision.
type ExpressionAttempt struct {
	ID                 string         `json:"id"`
	ThoughtID          string         `json:"thought_id"`
	Category           string         `json:"category"`
	Channel            string         `json:"channel"`
	MessageSent        string         `json:"message_sent"`
	Success            bool           `json:"success"`
	SuppressReason     SuppressReason `json:"suppress_reason"`
	DetectedUserState  string         `json:"detected_user_state,omitempty"`
	MotivationScore    float64        `json:"motivation_score"`
	UserResponse       UserResponse   `json:"user_response"`
	EffectivenessScore float64        `json:"effectiveness_score"`
	CreatedAt          time.Time      `json:"created_at"`
}

// QueueStatus is the queued-expression lifecycle state.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueShown   QueueStatus = "shown"
	QueueExpired QueueStatus = "expired"
)

// QueuedExpression is a thought parked for the UI to pick up.
type QueuedExpression struct {
	ID                 string       `json:"id"`
	ThoughtID          string       `json:"thought_id"`
	Category           string       `json:"category"`
	Message            string       `json:"message"`
	Status             QueueStatus  `json:"status"`
	ShownAt            *time.Time   `json:"shown_at,omitempty"`
	UserResponse       UserResponse `json:"user_response"`
	EffectivenessScore float64      `json:"effectiveness_score"`
	CreatedAt          time.Time    `json:"created_at"`
}

// ReflectionType classifies higher-order reflections.
type ReflectionType string

const (
	ReflectionInsight     ReflectionType = "insight"
	ReflectionQuestion    ReflectionType = "question"
	ReflectionRealization ReflectionType = "realization"
	ReflectionGrowth      ReflectionType = "growth"
)

// ReflectionStatus is the reflection lifecycle state.
type ReflectionStatus string

const (
	ReflectionActive     ReflectionStatus = "active"
	ReflectionIntegrated ReflectionStatus = "integrated"
	ReflectionSuperseded ReflectionStatus = "superseded"
)

// Reflection is an abstraction produced from clustered episodic events.
type Reflection struct {
	ID                 string           `json:"id"`
	Type               ReflectionType   `json:"type"`
	Content            string           `json:"content"`
	TriggerSummary     string           `json:"trigger_summary"`
	ImportanceSum      float64          `json:"importance_sum"`
	SourceThoughtIDs   []string         `json:"source_thought_ids,omitempty"`
	SourceEmotionIDs   []string         `json:"source_emotion_ids,omitempty"`
	DepthLevel         int              `json:"depth_level"`
	ParentReflectionID string           `json:"parent_reflection_id,omitempty"`
	Status             ReflectionStatus `json:"status"`
	IntegratedInto     string           `json:"integrated_into,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// ConsolidationEntry records one cluster abstraction.
type ConsolidationEntry struct {
	ID            string    `json:"id"`
	SourceType    string    `json:"source_type"`
	SourceCount   int       `json:"source_count"`
	TopicCluster  string    `json:"topic_cluster"`
	Abstraction   string    `json:"abstraction"`
	TargetType    string    `json:"target_type"` // knowledge_node / learning / preference
	TargetID      string    `json:"target_id"`
	Confidence    float64   `json:"confidence"`
	SourceIDs     []string  `json:"source_ids"`
	SourceSetHash string    `json:"source_set_hash"`
	CreatedAt     time.Time `json:"created_at"`
}

// Pattern is a mined recurring regularity.
type Pattern struct {
	ID          string         `json:"id"`
	Family      string         `json:"family"` // time_of_day / emotional_cycle / topic_sequence / activity / session_duration
	Key         string         `json:"key"`    // structural dedup key
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	Support     int            `json:"support"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Prediction is a time-bound forecast derived from a pattern.
type Prediction struct {
	ID             string     `json:"id"`
	Type           string     `json:"prediction_type"`
	Text           string     `json:"prediction_text"`
	Confidence     float64    `json:"confidence"`
	PredictedTime  time.Time  `json:"predicted_time"`
	BasedOnPattern string     `json:"based_on_pattern"`
	Verified       bool       `json:"verified"`
	OutcomeCorrect bool       `json:"outcome_correct"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// RewardSignal combines explicit, implicit and self-eval scores for one
// expression attempt. Nil component pointers mean "absent" and trigger
// proportional weight redistribution.
type RewardSignal struct {
	ID                     string    `json:"id"`
	AttemptID              string    `json:"attempt_id"`
	ConversationID         string    `json:"conversation_id,omitempty"`
	ExplicitScore          *float64  `json:"explicit_score,omitempty"`
	ImplicitScore          *float64  `json:"implicit_score,omitempty"`
	SelfEvalScore          *float64  `json:"self_eval_score,omitempty"`
	CombinedReward         float64   `json:"combined_reward"`
	ExplicitSource         string    `json:"explicit_source,omitempty"`
	ImplicitClassification string    `json:"implicit_classification"`
	PrinciplesEvaluated    []string  `json:"principles_evaluated,omitempty"`
	ScoredAt               time.Time `json:"scored_at"`
}

// PreferencePair records a rejected response alongside the preferred one.
type PreferencePair struct {
	ID                 string    `json:"id"`
	UserMessage        string    `json:"user_message"`
	PreferredResponse  string    `json:"preferred_response"`
	RejectedResponse   string    `json:"rejected_response"`
	PreferenceStrength float64   `json:"preference_strength"`
	CreatedAt          time.Time `json:"created_at"`
}

// PlanStatus is the plan lifecycle state.
type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanActive    PlanStatus = "active"
	PlanPaused    PlanStatus = "paused"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
)

// Plan is a DAG of intended actions.
type Plan struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Status         PlanStatus `json:"status"`
	Priority       int        `json:"priority"`
	TotalSteps     int        `json:"total_steps"`
	CompletedSteps int        `json:"completed_steps"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// StepStatus is the plan-step lifecycle state.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// PlanStep is one unit of work inside a plan.
type PlanStep struct {
	ID            string         `json:"id"`
	PlanID        string         `json:"plan_id"`
	StepOrder     int            `json:"step_order"`
	ActionType    string         `json:"action_type"`
	ActionPayload map[string]any `json:"action_payload,omitempty"`
	Dependencies  []string       `json:"dependencies,omitempty"`
	Status        StepStatus     `json:"status"`
	ResultData    map[string]any `json:"result_data,omitempty"`
	RetryCount    int            `json:"retry_count"`
	Optional      bool           `json:"optional"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// ToolDescriptor describes a named external action.
type ToolDescriptor struct {
	Name                 string         `json:"name"`
	Category             string         `json:"category"`
	ParametersSchema     map[string]any `json:"parameters_schema,omitempty"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	CostTier             int            `json:"cost_tier"`
	Enabled              bool           `json:"enabled"`
	TotalExecutions      int            `json:"total_executions"`
	TotalSuccesses       int            `json:"total_successes"`
}

// ToolExecution logs one tool invocation.
type ToolExecution struct {
	ID         string    `json:"id"`
	ToolName   string    `json:"tool_name"`
	DurationMS int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Summary    string    `json:"summary"`
	CreatedAt  time.Time `json:"created_at"`
}

// CareState is a snapshot of current wellbeing indicators.
type CareState struct {
	ID            string    `json:"id"`
	Energy        float64   `json:"energy"`
	Stress        float64   `json:"stress"`
	Sleep         float64   `json:"sleep"`
	Fatigue       float64   `json:"fatigue"`
	Wellbeing     float64   `json:"wellbeing"`
	DetectedState string    `json:"detected_state,omitempty"` // sleeping / deep_focus / relaxed / ...
	Context       string    `json:"context,omitempty"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidUntil    time.Time `json:"valid_until"`
}

// CritiqueResult is one self-critique evaluation of a candidate expression.
type CritiqueResult struct {
	ID                 string    `json:"id"`
	ThoughtID          string    `json:"thought_id"`
	Honesty            float64   `json:"honesty"`
	MemoryReference    float64   `json:"memory_reference"`
	Empathy            float64   `json:"empathy"`
	Accuracy           float64   `json:"accuracy"`
	Love               float64   `json:"love"`
	QualityScore       float64   `json:"quality_score"`
	Uncertainty        float64   `json:"uncertainty"`
	VerificationPassed bool      `json:"verification_passed"`
	CreatedAt          time.Time `json:"created_at"`
}

// TuningChange audits one evolution knob adjustment.
type TuningChange struct {
	ID        string    `json:"id"`
	Knob      string    `json:"knob"`
	Before    float64   `json:"before"`
	After     float64   `json:"after"`
	Evidence  string    `json:"evidence"`
	CreatedAt time.Time `json:"created_at"`
}

// PhaseResult is one phase's outcome inside a persisted health snapshot.
type PhaseResult struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	Degraded   bool   `json:"degraded,omitempty"`
}

// HealthSnapshot is the driver's externally visible state after one cycle,
// persisted so out-of-process readers (the dashboard MCP server) can see it.
type HealthSnapshot struct {
	ID            string        `json:"id"`
	OK            bool          `json:"ok"`
	DegradedStore bool          `json:"degraded_store"`
	CycleCount    uint64        `json:"cycle_count"`
	CycleStart    time.Time     `json:"cycle_start"`
	CycleEnd      time.Time     `json:"cycle_end"`
	Phases        []PhaseResult `json:"phases,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Emotion is one logged emotional observation.
type Emotion struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Valence   float64   `json:"valence"`   // -1..1
	Intensity float64   `json:"intensity"` // 0..1
	Trigger   string    `json:"trigger,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationTurn is one logged message in a conversation.
type ConversationTurn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // user / companion
	Content        string    `json:"content"`
	Embedding      []float64 `json:"embedding,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Goal is an active user goal.
type Goal struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    string     `json:"status"` // active / done / dropped
	Priority  int        `json:"priority"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// CalendarEvent is a read-only synced calendar row.
type CalendarEvent struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeNode is a durable semantic abstraction.
type KnowledgeNode struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Content     string    `json:"content"`
	Embedding   []float64 `json:"embedding,omitempty"`
	Confidence  float64   `json:"confidence"`
	SourceCount int       `json:"source_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
