// Package llm holds the thin clients for the two external model contracts:
// embedding and deliberation. Both soft-fail — callers tolerate nil vectors
// and fall back to rule-based behavior when deliberation is unreachable.
package llm

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// embeddingCache is a simple fixed-size FIFO cache for embeddings.
// It reduces repeated provider calls for recurring stimulus content.
type embeddingCache struct {
	mu      sync.Mutex
	items   map[string][]float64
	order   []string
	maxSize int
}

func newEmbeddingCache(maxSize int) *embeddingCache {
	return &embeddingCache{
		items:   make(map[string][]float64, maxSize),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

func (c *embeddingCache) get(key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *embeddingCache) set(key string, emb []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		if len(c.order) >= c.maxSize {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
		c.order = append(c.order, key)
	}
	c.items[key] = emb
}

// Embedder is the embedding contract: text in, fixed-dimension vector out.
// An unreachable or failing provider returns an error; a response that carries
// no vector yields a nil vector with a nil error.
type Embedder interface {
	Embed(text string) ([]float64, error)
}

// EmbeddingClient generates embeddings via an Ollama-compatible endpoint.
type EmbeddingClient struct {
	baseURL string
	model   string
	client  *http.Client
	cache   *embeddingCache
}

// NewEmbeddingClient creates an embedding client.
func NewEmbeddingClient(baseURL, model string, timeout time.Duration) *EmbeddingClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text" // good default, 768 dims
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EmbeddingClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		cache:   newEmbeddingCache(256),
	}
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates an embedding for the given text.
func (c *EmbeddingClient) Embed(text string) ([]float64, error) {
	key := fmt.Sprintf("%x", sha256.Sum256([]byte(c.model+"\x00"+text)))
	if emb, ok := c.cache.get(key); ok {
		return emb, nil
	}

	reqBody, err := json.Marshal(embeddingRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Post(c.baseURL+"/api/embeddings", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding request: status %d: %s", resp.StatusCode, body)
	}

	var er embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("embedding decode: %w", err)
	}
	c.cache.set(key, er.Embedding)
	return er.Embedding, nil
}
