package consolidate

import (
	"sort"

	"github.com/mwaldron/aura/internal/store"
)

// item is one episodic row entering clustering.
type item struct {
	ID         string
	SourceType string // conversation / thought / emotion
	Content    string
	Embedding  []float64
	Importance float64
}

// cluster is a group of related episodic items.
type cluster struct {
	items    []*item
	centroid []float64
}

// clusterByEmbedding groups items greedily: each item joins the first
// cluster whose centroid is within the similarity threshold, else starts a
// new one. Clusters below minSize are discarded. Deterministic for a fixed
// input order.
func clusterByEmbedding(items []*item, threshold float64, minSize int) []*cluster {
	var clusters []*cluster
	for _, it := range items {
		if len(it.Embedding) == 0 {
			continue
		}
		var best *cluster
		var bestSim float64
		for _, cl := range clusters {
			sim := store.CosineSimilarity(it.Embedding, cl.centroid)
			if sim >= threshold && sim > bestSim {
				best, bestSim = cl, sim
			}
		}
		if best == nil {
			clusters = append(clusters, &cluster{
				items:    []*item{it},
				centroid: append([]float64(nil), it.Embedding...),
			})
			continue
		}
		best.items = append(best.items, it)
		best.updateCentroid(it.Embedding)
	}

	var keep []*cluster
	for _, cl := range clusters {
		if len(cl.items) >= minSize {
			keep = append(keep, cl)
		}
	}
	return keep
}

// updateCentroid folds a new vector into the running mean.
func (c *cluster) updateCentroid(vec []float64) {
	n := float64(len(c.items))
	for i := range c.centroid {
		c.centroid[i] = (c.centroid[i]*(n-1) + vec[i]) / n
	}
}

// sourceIDs returns the sorted item ids of a cluster.
func (c *cluster) sourceIDs() []string {
	ids := make([]string, 0, len(c.items))
	for _, it := range c.items {
		ids = append(ids, it.ID)
	}
	sort.Strings(ids)
	return ids
}

// importanceSum totals item importances.
func (c *cluster) importanceSum() float64 {
	var sum float64
	for _, it := range c.items {
		sum += it.Importance
	}
	return sum
}

// dominantSourceType returns the most common source type in the cluster.
func (c *cluster) dominantSourceType() string {
	counts := map[string]int{}
	for _, it := range c.items {
		counts[it.SourceType]++
	}
	best, bestN := "conversation", 0
	for typ, n := range counts {
		if n > bestN {
			best, bestN = typ, n
		}
	}
	return best
}
