package store

import (
	"database/sql"
	"encoding/json"
	"math"
	"sort"
)

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched or empty vectors yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Neighbor is one nearest-neighbor result.
type Neighbor struct {
	ID         string
	Content    string
	Similarity float64
}

// nearest runs a cosine KNN over the given table's embedding column.
// When sqlite-vec is loaded the distance is computed in SQL; otherwise rows
// are scanned and ranked in Go. Either way the result is identical.
func (s *Store) nearest(table, idCol, contentCol string, query []float64, k int) ([]Neighbor, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}
	if s.vecAvailable {
		qjson, _ := json.Marshal(query)
		rows, err := s.db.Query(
			`SELECT `+idCol+`, `+contentCol+`,
				vec_distance_cosine(embedding, ?) AS dist
			FROM `+table+`
			WHERE embedding IS NOT NULL
			ORDER BY dist ASC LIMIT ?`, string(qjson), k)
		if err == nil {
			defer rows.Close()
			var out []Neighbor
			for rows.Next() {
				var n Neighbor
				var dist float64
				if err := rows.Scan(&n.ID, &n.Content, &dist); err != nil {
					continue
				}
				n.Similarity = 1 - dist
				out = append(out, n)
			}
			return out, rows.Err()
		}
		// fall through to full scan on error (e.g. dimension mismatch rows)
	}
	return s.nearestScan(table, idCol, contentCol, query, k)
}

func (s *Store) nearestScan(table, idCol, contentCol string, query []float64, k int) ([]Neighbor, error) {
	rows, err := s.db.Query(`SELECT ` + idCol + `, ` + contentCol + `, embedding FROM ` + table + ` WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		var emb sql.NullString
		if err := rows.Scan(&n.ID, &n.Content, &emb); err != nil {
			continue
		}
		var vec []float64
		unmarshalJSON(emb, &vec)
		if len(vec) != len(query) {
			continue
		}
		n.Similarity = CosineSimilarity(query, vec)
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > k {
		out = out[:k]
	}
	return out, rows.Err()
}

// NearestConversations returns the k most similar conversation turns.
func (s *Store) NearestConversations(query []float64, k int) ([]Neighbor, error) {
	return s.nearest("conversations", "id", "content", query, k)
}

// NearestKnowledge returns the k most similar knowledge nodes.
func (s *Store) NearestKnowledge(query []float64, k int) ([]Neighbor, error) {
	return s.nearest("knowledge_nodes", "id", "content", query, k)
}

// NearestStimuli returns the k most similar stimuli.
func (s *Store) NearestStimuli(query []float64, k int) ([]Neighbor, error) {
	return s.nearest("stimuli", "id", "content", query, k)
}
