package express

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mwaldron/aura/internal/care"
	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/config"
	"github.com/mwaldron/aura/internal/logging"
	"github.com/mwaldron/aura/internal/store"
)

// ChannelPolicy maps thought category × detected user state to a channel
// name. Empty pick means enqueue to the UI.
type ChannelPolicy struct {
	Rules map[string]map[string]string `yaml:"rules"` // category -> state -> channel
	// States that suppress expression unless the category overrides them.
	FilteredStates  []string `yaml:"filtered_states"`
	OverrideFilters []string `yaml:"override_filters"` // categories allowed through filtered states
}

// DefaultChannelPolicy is the builtin policy table.
func DefaultChannelPolicy() *ChannelPolicy {
	return &ChannelPolicy{
		Rules: map[string]map[string]string{
			"care_message": {"default": "messenger", "relaxed": "messenger"},
			"reminder":     {"default": "messenger", "deep_focus": ""},
			"memory":       {"default": ""},
		},
		FilteredStates:  []string{"sleeping", "deep_focus"},
		OverrideFilters: []string{"reminder"},
	}
}

// LoadChannelPolicy reads a policy table file; a missing path yields the
// default table.
func LoadChannelPolicy(path string) (*ChannelPolicy, error) {
	if path == "" {
		return DefaultChannelPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultChannelPolicy(), nil
		}
		return nil, err
	}
	p := &ChannelPolicy{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse channel policy: %w", err)
	}
	return p, nil
}

// Pick resolves the channel for a category and state. Empty means UI.
func (p *ChannelPolicy) Pick(category, state string) string {
	states, ok := p.Rules[category]
	if !ok {
		return ""
	}
	if ch, ok := states[state]; ok {
		return ch
	}
	return states["default"]
}

// StateFiltered reports whether the detected state suppresses the category.
func (p *ChannelPolicy) StateFiltered(category, state string) bool {
	filtered := false
	for _, s := range p.FilteredStates {
		if s == state {
			filtered = true
			break
		}
	}
	if !filtered {
		return false
	}
	for _, c := range p.OverrideFilters {
		if c == category {
			return false
		}
	}
	return true
}

// SetRule updates one policy entry (evolution tuning).
func (p *ChannelPolicy) SetRule(category, state, channel string) {
	if p.Rules == nil {
		p.Rules = map[string]map[string]string{}
	}
	if p.Rules[category] == nil {
		p.Rules[category] = map[string]string{}
	}
	p.Rules[category][state] = channel
}

// Router decides whether and where each motivated thought is expressed.
type Router struct {
	store    *store.Store
	critic   *Critic
	policy   *care.Policy
	channels map[string]Channel
	uiQueue  *UIQueue
	clk      clock.Clock

	mu               sync.Mutex
	table            *ChannelPolicy
	expressThreshold float64
	qualityThreshold float64
	dedupWindow      time.Duration
}

// NewRouter creates the motivation and expression router.
func NewRouter(st *store.Store, critic *Critic, policy *care.Policy, table *ChannelPolicy, clk clock.Clock, cfg *config.ExpressConfig) *Router {
	return &Router{
		store:            st,
		critic:           critic,
		policy:           policy,
		channels:         map[string]Channel{},
		uiQueue:          NewUIQueue(st),
		clk:              clk,
		table:            table,
		expressThreshold: cfg.Threshold,
		qualityThreshold: cfg.QualityThreshold,
		dedupWindow:      time.Duration(cfg.DedupWindowMin) * time.Minute,
	}
}

// RegisterChannel adds an external sink.
func (r *Router) RegisterChannel(ch Channel) {
	r.channels[ch.Name()] = ch
}

// Thresholds returns the current express and quality thresholds.
func (r *Router) Thresholds() (express, quality float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expressThreshold, r.qualityThreshold
}

// SetThresholds updates the routing thresholds (evolution tuning).
func (r *Router) SetThresholds(express, quality float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expressThreshold = express
	r.qualityThreshold = quality
}

// PolicyTable returns the live channel-policy table.
func (r *Router) PolicyTable() *ChannelPolicy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table
}

// RouteActive processes active thoughts in descending motivation order.
// Within one tick at most one external emission lands per category, so a
// burst of motivated thoughts cannot flood a channel between cooldown
// checks.
func (r *Router) RouteActive(ctx context.Context) error {
	r.mu.Lock()
	threshold := r.expressThreshold
	r.mu.Unlock()

	thoughts, err := r.store.ActiveThoughts(50)
	if err != nil {
		return err
	}

	emittedCategory := map[string]bool{}
	for _, t := range thoughts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.MotivationScore < threshold {
			continue // strictly-below threshold is not routed
		}
		if err := r.route(ctx, t, emittedCategory); err != nil {
			logging.Warn("router", "routing thought %s: %v", t.ID, err)
		}
	}
	return nil
}

// route applies the decision ladder to a single thought.
func (r *Router) route(ctx context.Context, t *store.Thought, emittedCategory map[string]bool) error {
	now := r.clk.Now()
	r.mu.Lock()
	quality := r.qualityThreshold
	dedup := r.dedupWindow
	table := r.table
	r.mu.Unlock()

	userState, err := r.policy.DetectedUserState(now)
	if err != nil {
		return err
	}

	// 1. Quality gate
	critique, err := r.critic.Evaluate(ctx, t)
	if err != nil {
		return err
	}
	if !critique.VerificationPassed || critique.QualityScore < quality {
		return r.suppress(t, store.SuppressQuality, "", userState, now)
	}

	// 2. Duplicate gate
	dup, err := r.store.HasRecentSuccess(t.Content, now.Add(-dedup))
	if err != nil {
		return err
	}
	if dup {
		return r.suppress(t, store.SuppressDuplicate, "", userState, now)
	}

	// Gates 3-5 are evaluated against one snapshot. Care gates apply only to
	// external sinks, so the channel pick is resolved up front.
	channelName := table.Pick(t.Category, userState)
	external := channelName != "" && channelName != ChannelUI

	if external {
		allowed, reason, err := r.policy.AllowedNow(t.Category, now)
		if err != nil {
			return err
		}
		if !allowed {
			return r.suppress(t, reason, channelName, userState, now)
		}
	}
	if table.StateFiltered(t.Category, userState) {
		return r.suppress(t, store.SuppressStateFilter, channelName, userState, now)
	}
	if !external {
		logging.Debug("router", "enqueue %s for ui", t.ID)
		return r.uiQueue.Enqueue(t, now)
	}
	if emittedCategory[t.Category] {
		// One external emission per category per tick.
		return r.suppress(t, store.SuppressRateLimit, channelName, userState, now)
	}

	ch, ok := r.channels[channelName]
	if !ok {
		logging.Warn("router", "channel %q not registered, enqueueing for ui", channelName)
		return r.uiQueue.Enqueue(t, now)
	}

	result, sendErr := ch.Send(ctx, t.Content)
	attempt := &store.ExpressionAttempt{
		ThoughtID:         t.ID,
		Category:          t.Category,
		Channel:           channelName,
		MessageSent:       t.Content,
		DetectedUserState: userState,
		MotivationScore:   t.MotivationScore,
	}
	if sendErr != nil || !result.Delivered {
		logging.Warn("router", "delivery failed on %s: %v", channelName, sendErr)
		return r.store.RecordDeliveryFailure(attempt, now)
	}
	if err := r.store.RecordEmission(attempt, now); err != nil {
		return err
	}
	emittedCategory[t.Category] = true
	logging.Info("router", "expressed %s via %s: %s", t.ID, channelName, logging.Truncate(t.Content, 80))
	return nil
}

// suppress records a withheld expression. Not an error: suppression is the
// policy working as intended.
func (r *Router) suppress(t *store.Thought, reason store.SuppressReason, channel, userState string, now time.Time) error {
	if channel == "" {
		channel = "none"
	}
	logging.Debug("router", "suppressed %s (%s)", t.ID, reason)
	return r.store.RecordSuppression(&store.ExpressionAttempt{
		ThoughtID:         t.ID,
		Category:          t.Category,
		Channel:           channel,
		MessageSent:       t.Content,
		SuppressReason:    reason,
		DetectedUserState: userState,
		MotivationScore:   t.MotivationScore,
	}, now)
}

// ExpireQueued expires stale UI-queue entries.
func (r *Router) ExpireQueued(window time.Duration) (int, error) {
	return r.uiQueue.Expire(window, r.clk.Now())
}
