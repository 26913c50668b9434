// Package consolidate turns episodic rows into semantic knowledge: it
// clusters the recent window by embedding similarity, produces one
// abstraction per cluster through the deliberation contract, and links each
// to a knowledge node. Running twice over the same source set writes
// nothing new.
package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/llm"
	"github.com/mwaldron/aura/internal/logging"
	"github.com/mwaldron/aura/internal/store"
)

const abstractionSystemPrompt = `You summarize a cluster of related episodic
events from a companion's memory into one durable insight. Respond with JSON
only: {"insight": "...", "topic": "...", "confidence": 0.0}`

// Consolidator produces semantic abstractions and reflections from episodic rows.
type Consolidator struct {
	store       *store.Store
	embedder    llm.Embedder
	deliberator llm.Deliberator
	clk         clock.Clock

	Lookback            time.Duration
	SimilarityThreshold float64
	MinClusterSize      int
	ReflectionThreshold float64 // importance_sum above which a cluster also yields a reflection
	MatchThreshold      float64 // similarity above which a cluster updates an existing knowledge node
	Parallelism         int
}

// NewConsolidator creates a consolidator.
func NewConsolidator(st *store.Store, embedder llm.Embedder, deliberator llm.Deliberator, clk clock.Clock, lookbackHours, minClusterSize int, similarity float64) *Consolidator {
	return &Consolidator{
		store:               st,
		embedder:            embedder,
		deliberator:         deliberator,
		clk:                 clk,
		Lookback:            time.Duration(lookbackHours) * time.Hour,
		SimilarityThreshold: similarity,
		MinClusterSize:      minClusterSize,
		ReflectionThreshold: 2.0,
		MatchThreshold:      0.85,
		Parallelism:         3,
	}
}

// Result summarizes one consolidation run.
type Result struct {
	Clusters    int
	Entries     int
	Reflections int
	Degraded    bool // deliberation unavailable: no abstractions invented
}

// Run consolidates the lookback window once.
func (c *Consolidator) Run(ctx context.Context) (*Result, error) {
	now := c.clk.Now()
	items, err := c.collect(now)
	if err != nil {
		return nil, err
	}

	clusters := clusterByEmbedding(items, c.SimilarityThreshold, c.MinClusterSize)
	result := &Result{Clusters: len(clusters)}
	if len(clusters) == 0 {
		return result, nil
	}
	logging.Info("consolidate", "%d episodic items formed %d clusters", len(items), len(clusters))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Parallelism)
	for _, cl := range clusters {
		cl := cl
		g.Go(func() error {
			entryNew, reflectionNew, degraded, err := c.consolidateCluster(gctx, cl, now)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if entryNew {
				result.Entries++
			}
			if reflectionNew {
				result.Reflections++
			}
			if degraded {
				result.Degraded = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// consolidateCluster abstracts one cluster and links it to a knowledge
// target. Already-consolidated source sets are skipped before any external
// call is made.
func (c *Consolidator) consolidateCluster(ctx context.Context, cl *cluster, now time.Time) (entryNew, reflectionNew, degraded bool, err error) {
	sourceIDs := cl.sourceIDs()
	exists, err := c.store.ConsolidationExists(sourceIDs)
	if err != nil || exists {
		return false, false, false, err
	}

	abstraction, topic, confidence, err := c.abstract(ctx, cl)
	if err != nil {
		// No abstraction is invented when deliberation is down.
		logging.Warn("consolidate", "deliberation unavailable, cluster deferred: %v", err)
		return false, false, true, nil
	}

	targetType, targetID, err := c.linkTarget(cl, topic, abstraction, confidence, now)
	if err != nil {
		return false, false, false, err
	}

	inserted, err := c.store.InsertConsolidation(&store.ConsolidationEntry{
		SourceType:   cl.dominantSourceType(),
		SourceCount:  len(cl.items),
		TopicCluster: topic,
		Abstraction:  abstraction,
		TargetType:   targetType,
		TargetID:     targetID,
		Confidence:   confidence,
		SourceIDs:    sourceIDs,
	}, now)
	if err != nil {
		return false, false, false, err
	}

	if inserted && cl.importanceSum() >= c.ReflectionThreshold {
		reflection := &store.Reflection{
			Type:           store.ReflectionInsight,
			Content:        abstraction,
			TriggerSummary: fmt.Sprintf("%d %s items clustered around %q", len(cl.items), cl.dominantSourceType(), topic),
			ImportanceSum:  cl.importanceSum(),
			DepthLevel:     1,
			Status:         store.ReflectionActive,
		}
		for _, it := range cl.items {
			switch it.SourceType {
			case "thought":
				reflection.SourceThoughtIDs = append(reflection.SourceThoughtIDs, it.ID)
			case "emotion":
				reflection.SourceEmotionIDs = append(reflection.SourceEmotionIDs, it.ID)
			}
		}
		if err := c.store.InsertReflection(reflection, now); err != nil {
			return inserted, false, false, err
		}
		reflectionNew = true
	}
	return inserted, reflectionNew, false, nil
}

// abstract produces the cluster's insight via the deliberation contract.
func (c *Consolidator) abstract(ctx context.Context, cl *cluster) (insight, topic string, confidence float64, err error) {
	if c.deliberator == nil {
		return "", "", 0, fmt.Errorf("no deliberator configured")
	}
	var b strings.Builder
	b.WriteString("Cluster items:\n")
	for _, it := range cl.items {
		fmt.Fprintf(&b, "- (%s) %s\n", it.SourceType, logging.Truncate(it.Content, 200))
	}
	res, err := c.deliberator.Deliberate(ctx, llm.DeliberationRequest{
		SystemPrompt: abstractionSystemPrompt,
		Context:      b.String(),
		MaxTokens:    300,
		Temperature:  0.3,
	})
	if err != nil {
		return "", "", 0, err
	}
	raw := llm.ExtractJSON(res.Text)
	var parsed struct {
		Insight    string  `json:"insight"`
		Topic      string  `json:"topic"`
		Confidence float64 `json:"confidence"`
	}
	if raw == "" || json.Unmarshal([]byte(raw), &parsed) != nil || parsed.Insight == "" {
		return "", "", 0, fmt.Errorf("unparseable abstraction response")
	}
	if parsed.Confidence <= 0 || parsed.Confidence > 1 {
		parsed.Confidence = 0.5
	}
	return parsed.Insight, parsed.Topic, parsed.Confidence, nil
}

// linkTarget updates a matching knowledge node or creates a new one.
func (c *Consolidator) linkTarget(cl *cluster, topic, abstraction string, confidence float64, now time.Time) (string, string, error) {
	neighbors, err := c.store.NearestKnowledge(cl.centroid, 1)
	if err != nil {
		return "", "", err
	}
	if len(neighbors) > 0 && neighbors[0].Similarity >= c.MatchThreshold {
		existing, err := c.store.GetKnowledgeNode(neighbors[0].ID)
		if err != nil {
			return "", "", err
		}
		existing.Content = abstraction
		existing.Confidence = (existing.Confidence + confidence) / 2
		existing.SourceCount += len(cl.items)
		if err := c.store.UpsertKnowledgeNode(existing, now); err != nil {
			return "", "", err
		}
		return "knowledge_node", existing.ID, nil
	}

	node := &store.KnowledgeNode{
		Topic:       topic,
		Content:     abstraction,
		Embedding:   cl.centroid,
		Confidence:  confidence,
		SourceCount: len(cl.items),
	}
	if err := c.store.UpsertKnowledgeNode(node, now); err != nil {
		return "", "", err
	}
	return "knowledge_node", node.ID, nil
}

// collect gathers the episodic window: conversation turns, thoughts and
// emotions. Active reflections are not collected, so a reflection never joins
// a later cluster and its depth level stays 1.
func (c *Consolidator) collect(now time.Time) ([]*item, error) {
	cutoff := now.Add(-c.Lookback)
	var items []*item

	turns, err := c.store.RecentConversationTurns(cutoff, 500)
	if err != nil {
		return nil, err
	}
	for _, t := range turns {
		it := &item{ID: t.ID, SourceType: "conversation", Content: t.Content, Embedding: t.Embedding, Importance: 0.3}
		c.backfillEmbedding(it)
		items = append(items, it)
	}

	thoughts, err := c.store.RecentThoughts(cutoff, 200)
	if err != nil {
		return nil, err
	}
	for _, t := range thoughts {
		it := &item{ID: t.ID, SourceType: "thought", Content: t.Content, Importance: t.MotivationScore}
		c.backfillEmbedding(it)
		items = append(items, it)
	}

	emotions, err := c.store.RecentEmotions(cutoff, 200)
	if err != nil {
		return nil, err
	}
	for _, e := range emotions {
		it := &item{
			ID:         e.ID,
			SourceType: "emotion",
			Content:    fmt.Sprintf("felt %s (%s)", e.Label, e.Trigger),
			Importance: e.Intensity,
		}
		c.backfillEmbedding(it)
		items = append(items, it)
	}
	return items, nil
}

// backfillEmbedding fills a missing vector; failures leave the item out of
// clustering rather than aborting the run.
func (c *Consolidator) backfillEmbedding(it *item) {
	if len(it.Embedding) > 0 || c.embedder == nil {
		return
	}
	vec, err := c.embedder.Embed(it.Content)
	if err != nil {
		logging.Debug("consolidate", "embedding unavailable for %s: %v", it.ID, err)
		return
	}
	it.Embedding = vec
}
