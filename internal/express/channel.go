// Package express routes motivated thoughts to expression: the self-critique
// quality gate, the duplicate and care gates, channel pick, and the durable
// expression log. All externally visible output passes through here.
package express

import (
	"context"
	"time"

	"github.com/mwaldron/aura/internal/store"
)

// ChannelUI is the internal queue channel label.
const ChannelUI = "ui"

// SendResult is the outcome of one channel delivery.
type SendResult struct {
	Delivered bool
	MessageID string
}

// Channel is a named external sink.
type Channel interface {
	Name() string
	Send(ctx context.Context, payload string) (SendResult, error)
}

// UIQueue is the internal channel: instead of an external endpoint it parks
// the message as a QueuedExpression for the dashboard to poll.
type UIQueue struct {
	store *store.Store
}

// NewUIQueue creates the UI queue channel.
func NewUIQueue(st *store.Store) *UIQueue {
	return &UIQueue{store: st}
}

// Enqueue parks a thought's message for the UI.
func (u *UIQueue) Enqueue(t *store.Thought, now time.Time) error {
	return u.store.Enqueue(&store.QueuedExpression{
		ThoughtID: t.ID,
		Category:  t.Category,
		Message:   t.Content,
		Status:    store.QueuePending,
	}, now)
}

// Expire expires pending entries older than the window.
func (u *UIQueue) Expire(window time.Duration, now time.Time) (int, error) {
	return u.store.ExpireQueued(now.Add(-window))
}
