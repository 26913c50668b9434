// Package config loads the runtime configuration document. Unknown keys are
// a startup failure; unspecified keys take their defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Interval is a clock-time window, possibly crossing midnight ("23:00"–"06:00").
type Interval struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// CycleConfig drives the consciousness loop cadence.
type CycleConfig struct {
	PeriodSeconds int `yaml:"period_seconds"`
	PhaseBudgetMS int `yaml:"phase_budget_ms"`
}

// SenseConfig controls the SENSE phase.
type SenseConfig struct {
	TopK int `yaml:"top_k"`
}

// SalienceConfig holds the dimension weights and novelty lookback.
type SalienceConfig struct {
	Weights         map[string]float64 `yaml:"weights"`
	LookbackMinutes int                `yaml:"lookback_minutes"`
}

// ThoughtConfig controls System-1/System-2 generation.
type ThoughtConfig struct {
	S2MaxCallsPerTick int `yaml:"s2_max_calls_per_tick"`
	S2LatencyMS       int `yaml:"s2_latency_ms"`
	DecayHours        int `yaml:"decay_hours"`
}

// ExpressConfig controls the motivation router.
type ExpressConfig struct {
	Threshold        float64 `yaml:"threshold"`
	QualityThreshold float64 `yaml:"quality_threshold"`
	DedupWindowMin   int     `yaml:"dedup_window_min"`
	QueueExpiryMin   int     `yaml:"queue_expiry_min"`
	PolicyPath       string  `yaml:"policy_path"`
}

// CareConfig holds DND windows, daily caps, and cooldowns per category.
type CareConfig struct {
	DNDWeekday      []Interval     `yaml:"dnd_weekday"`
	DNDWeekend      []Interval     `yaml:"dnd_weekend"`
	DailyLimits     map[string]int `yaml:"daily_limits"`
	CooldownMinutes map[string]int `yaml:"cooldown_minutes"`
}

// ConsolidationConfig controls episodic clustering.
type ConsolidationConfig struct {
	MinClusterSize      int     `yaml:"min_cluster_size"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	LookbackHours       int     `yaml:"lookback_hours"`
	Schedule            string  `yaml:"schedule"`
}

// EvolutionConfig bounds the auto-tuner.
type EvolutionConfig struct {
	MaxStep  float64 `yaml:"max_step"`
	Schedule string  `yaml:"schedule"`
}

// PlannerConfig controls step execution.
type PlannerConfig struct {
	MaxRetries    int `yaml:"max_retries"`
	StepTimeoutMS int `yaml:"step_timeout_ms"`
}

// RewardWeights are the combined-reward component weights.
type RewardWeights struct {
	Explicit float64 `yaml:"explicit"`
	Implicit float64 `yaml:"implicit"`
	SelfEval float64 `yaml:"self_eval"`
}

// RewardConfig controls reward aggregation.
type RewardConfig struct {
	Weights RewardWeights `yaml:"weights"`
}

// LLMConfig points at the deliberation and embedding providers.
type LLMConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
	EmbedTimeoutMS int    `yaml:"embed_timeout_ms"`
}

// Config is the full runtime configuration document.
type Config struct {
	Timezone      string              `yaml:"timezone"`
	StatePath     string              `yaml:"state_path"`
	Cycle         CycleConfig         `yaml:"cycle"`
	Sense         SenseConfig         `yaml:"sense"`
	Salience      SalienceConfig      `yaml:"salience"`
	Thought       ThoughtConfig       `yaml:"thought"`
	Express       ExpressConfig       `yaml:"express"`
	Care          CareConfig          `yaml:"care"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Evolution     EvolutionConfig     `yaml:"evolution"`
	Planner       PlannerConfig       `yaml:"planner"`
	Reward        RewardConfig        `yaml:"reward"`
	LLM           LLMConfig           `yaml:"llm"`
}

// Default returns a config populated with every documented default.
func Default() *Config {
	return &Config{
		Timezone:  "",
		StatePath: "./state",
		Cycle:     CycleConfig{PeriodSeconds: 10, PhaseBudgetMS: 5000},
		Sense:     SenseConfig{TopK: 5},
		Salience: SalienceConfig{
			Weights: map[string]float64{
				"novelty":          0.15,
				"emotional":        0.30,
				"goal_relevance":   0.25,
				"temporal_urgency": 0.15,
				"social_relevance": 0.15,
			},
			LookbackMinutes: 120,
		},
		Thought: ThoughtConfig{S2MaxCallsPerTick: 2, S2LatencyMS: 8000, DecayHours: 24},
		Express: ExpressConfig{
			Threshold:        0.6,
			QualityThreshold: 0.7,
			DedupWindowMin:   60,
			QueueExpiryMin:   1440,
		},
		Care: CareConfig{
			DNDWeekday:      []Interval{{Start: "23:00", End: "07:00"}},
			DNDWeekend:      []Interval{{Start: "00:00", End: "09:00"}},
			DailyLimits:     map[string]int{"default": 10},
			CooldownMinutes: map[string]int{"default": 30},
		},
		Consolidation: ConsolidationConfig{
			MinClusterSize:      3,
			SimilarityThreshold: 0.75,
			LookbackHours:       48,
			Schedule:            "0 */6 * * *",
		},
		Evolution: EvolutionConfig{MaxStep: 0.05, Schedule: "30 3 * * *"},
		Planner:   PlannerConfig{MaxRetries: 3, StepTimeoutMS: 60000},
		Reward:    RewardConfig{Weights: RewardWeights{Explicit: 0.4, Implicit: 0.3, SelfEval: 0.3}},
		LLM: LLMConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "llama3.2",
			EmbeddingModel: "nomic-embed-text",
			EmbedTimeoutMS: 10000,
		},
	}
}

// Load reads and validates the config file at path. A missing file yields
// the defaults; unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and interval formats.
func (c *Config) Validate() error {
	if c.Cycle.PeriodSeconds <= 0 {
		return fmt.Errorf("cycle.period_seconds must be positive")
	}
	if c.Sense.TopK < 0 {
		return fmt.Errorf("sense.top_k must be >= 0")
	}
	if c.Express.Threshold < 0 || c.Express.Threshold > 1 {
		return fmt.Errorf("express.threshold must be in [0,1]")
	}
	if c.Express.QualityThreshold < 0 || c.Express.QualityThreshold > 1 {
		return fmt.Errorf("express.quality_threshold must be in [0,1]")
	}
	var sum float64
	for dim, w := range c.Salience.Weights {
		if w < 0 {
			return fmt.Errorf("salience.weights.%s must be >= 0", dim)
		}
		sum += w
	}
	if sum == 0 {
		return fmt.Errorf("salience.weights must not all be zero")
	}
	for _, iv := range append(append([]Interval{}, c.Care.DNDWeekday...), c.Care.DNDWeekend...) {
		if _, err := ParseClock(iv.Start); err != nil {
			return fmt.Errorf("care dnd start %q: %w", iv.Start, err)
		}
		if _, err := ParseClock(iv.End); err != nil {
			return fmt.Errorf("care dnd end %q: %w", iv.End, err)
		}
	}
	if c.Evolution.MaxStep < 0 || c.Evolution.MaxStep > 0.5 {
		return fmt.Errorf("evolution.max_step must be in [0,0.5]")
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// DailyLimit returns the per-day cap for a category, falling back to the
// "default" entry, then to unlimited (-1).
func (c *CareConfig) DailyLimit(category string) int {
	if v, ok := c.DailyLimits[category]; ok {
		return v
	}
	if v, ok := c.DailyLimits["default"]; ok {
		return v
	}
	return -1
}

// Cooldown returns the per-category cooldown, falling back to "default".
func (c *CareConfig) Cooldown(category string) time.Duration {
	if v, ok := c.CooldownMinutes[category]; ok {
		return time.Duration(v) * time.Minute
	}
	if v, ok := c.CooldownMinutes["default"]; ok {
		return time.Duration(v) * time.Minute
	}
	return 0
}
