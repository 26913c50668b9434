package consolidate

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/llm"
	"github.com/mwaldron/aura/internal/store"
)

var consNow = time.Date(2026, 3, 4, 3, 0, 0, 0, time.UTC)

// axisEmbedder embeds text onto one of two orthogonal axes by keyword, so
// clustering is fully controlled.
type axisEmbedder struct{}

func (axisEmbedder) Embed(text string) ([]float64, error) {
	if strings.Contains(text, "running") {
		return []float64{1, 0, 0}, nil
	}
	if strings.Contains(text, "cooking") {
		return []float64{0, 1, 0}, nil
	}
	return []float64{0, 0, 1}, nil
}

type cannedDeliberator struct {
	calls int
	fail  bool
}

func (d *cannedDeliberator) Deliberate(ctx context.Context, req llm.DeliberationRequest) (*llm.DeliberationResult, error) {
	d.calls++
	if d.fail {
		return nil, fmt.Errorf("deliberation unreachable")
	}
	return &llm.DeliberationResult{
		Text: `{"insight": "a recurring theme", "topic": "routine", "confidence": 0.8}`,
	}, nil
}

func seedTurns(t *testing.T, st *store.Store, topic string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := st.AddConversationTurn(&store.ConversationTurn{
			ConversationID: "c-" + topic, Role: "user",
			Content: fmt.Sprintf("talked about %s session %d", topic, i),
		}, consNow.Add(-time.Duration(i+1)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
}

func newConsolidator(t *testing.T, d llm.Deliberator) (*Consolidator, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	c := NewConsolidator(st, axisEmbedder{}, d, clock.NewFake(consNow), 48, 3, 0.75)
	return c, st
}

func TestClusterByEmbedding(t *testing.T) {
	items := []*item{
		{ID: "a", Embedding: []float64{1, 0}},
		{ID: "b", Embedding: []float64{0.99, 0.01}},
		{ID: "c", Embedding: []float64{0, 1}},
		{ID: "d", Embedding: []float64{0.98, 0.02}},
		{ID: "e", Embedding: []float64{0.01, 0.99}},
		{ID: "f", Embedding: []float64{0.02, 0.98}},
	}
	clusters := clusterByEmbedding(items, 0.9, 3)
	if len(clusters) != 2 {
		t.Fatalf("Expected 2 clusters, got %d", len(clusters))
	}
	sizes := []int{len(clusters[0].items), len(clusters[1].items)}
	if sizes[0]+sizes[1] != 6 {
		t.Errorf("Expected all items clustered, got sizes %v", sizes)
	}

	// Below min size: nothing survives
	small := clusterByEmbedding(items[:2], 0.9, 3)
	if len(small) != 0 {
		t.Errorf("Expected no clusters under min size, got %d", len(small))
	}

	// Items without embeddings are excluded, not fatal
	withNil := append(items, &item{ID: "g"})
	if got := clusterByEmbedding(withNil, 0.9, 3); len(got) != 2 {
		t.Errorf("Nil-embedding item should be skipped, got %d clusters", len(got))
	}
}

func TestTwoClustersTwoEntries(t *testing.T) {
	d := &cannedDeliberator{}
	c, st := newConsolidator(t, d)
	seedTurns(t, st, "running", 7)
	seedTurns(t, st, "cooking", 5)

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Clusters != 2 {
		t.Errorf("Expected 2 clusters from 12 rows, got %d", result.Clusters)
	}
	if result.Entries != 2 {
		t.Errorf("Expected 2 consolidation entries, got %d", result.Entries)
	}
	n, _ := st.CountConsolidations()
	if n != 2 {
		t.Errorf("Expected 2 rows persisted, got %d", n)
	}

	// Each entry links a knowledge node
	if _, err := st.NearestKnowledge([]float64{1, 0, 0}, 1); err != nil {
		t.Fatal(err)
	}
}

func TestIdempotentRerun(t *testing.T) {
	d := &cannedDeliberator{}
	c, st := newConsolidator(t, d)
	seedTurns(t, st, "running", 7)
	seedTurns(t, st, "cooking", 5)

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	before, _ := st.CountConsolidations()

	// Same window, no new data, no clock advance
	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Entries != 0 {
		t.Errorf("Second run should insert nothing, got %d", result.Entries)
	}
	after, _ := st.CountConsolidations()
	if after != before {
		t.Errorf("Row count changed on rerun: %d -> %d", before, after)
	}
}

func TestDeliberationUnavailableWritesNothing(t *testing.T) {
	d := &cannedDeliberator{fail: true}
	c, st := newConsolidator(t, d)
	seedTurns(t, st, "running", 7)

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Degraded {
		t.Error("Expected degraded flag when deliberation is down")
	}
	n, _ := st.CountConsolidations()
	if n != 0 {
		t.Errorf("No abstraction should be invented without deliberation, got %d rows", n)
	}
}

func TestReflectionForImportantCluster(t *testing.T) {
	d := &cannedDeliberator{}
	c, st := newConsolidator(t, d)
	// High-importance items: thoughts with strong motivation
	for i := 0; i < 4; i++ {
		th := &store.Thought{
			Type: store.ThoughtSystem2, Category: "care_message",
			Content:         fmt.Sprintf("worried about running injury %d", i),
			MotivationScore: 0.9,
		}
		if err := st.InsertThought(th, consNow.Add(-time.Duration(i+1)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Reflections != 1 {
		t.Fatalf("Expected one reflection, got %d", result.Reflections)
	}
	reflections, err := st.ActiveReflections(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(reflections) != 1 {
		t.Fatalf("Expected one stored reflection, got %d", len(reflections))
	}
	r := reflections[0]
	if r.DepthLevel != 1 || r.Type != store.ReflectionInsight {
		t.Errorf("Unexpected reflection shape: %+v", r)
	}
	if len(r.SourceThoughtIDs) != 4 {
		t.Errorf("Expected 4 source thoughts, got %d", len(r.SourceThoughtIDs))
	}
}
