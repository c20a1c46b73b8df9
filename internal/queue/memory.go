package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryMsg struct {
	orderID   uuid.UUID
	attempts  int
	visibleAt time.Time
}

// MemoryQueue is an in-process queue for tests and local development. It
// honors the same visibility-timeout contract as the durable backends.
type MemoryQueue struct {
	mu         sync.Mutex
	pending    []*memoryMsg
	inflight   map[*memoryMsg]time.Time
	visibility time.Duration
	closed     bool
}

func NewMemoryQueue(visibility time.Duration) *MemoryQueue {
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &MemoryQueue{
		inflight:   make(map[*memoryMsg]time.Time),
		visibility: visibility,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, orderID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.pending = append(q.pending, &memoryMsg{orderID: orderID, visibleAt: time.Now()})
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if d, err := q.tryReceive(); d != nil || err != nil {
			return d, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *MemoryQueue) tryReceive() (*Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	now := time.Now()

	// Expired in-flight messages go back to pending with their attempt
	// count intact.
	for msg, deadline := range q.inflight {
		if now.After(deadline) {
			delete(q.inflight, msg)
			q.pending = append(q.pending, msg)
		}
	}

	for i, msg := range q.pending {
		if msg.visibleAt.After(now) {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		msg.attempts++
		q.inflight[msg] = now.Add(q.visibility)
		return q.delivery(msg), nil
	}
	return nil, nil
}

func (q *MemoryQueue) delivery(msg *memoryMsg) *Delivery {
	return &Delivery{
		OrderID:  msg.orderID,
		Attempts: msg.attempts,
		ack: func(context.Context) error {
			q.mu.Lock()
			defer q.mu.Unlock()
			delete(q.inflight, msg)
			return nil
		},
		nack: func(_ context.Context, delay time.Duration) error {
			q.mu.Lock()
			defer q.mu.Unlock()
			delete(q.inflight, msg)
			msg.visibleAt = time.Now().Add(delay)
			q.pending = append(q.pending, msg)
			return nil
		},
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Len reports pending plus in-flight messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.inflight)
}
