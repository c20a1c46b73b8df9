// Package queue carries order ids from intake to the generation workers.
// Deliveries are at-least-once: a claimed message that is neither acked nor
// nacked reappears after the visibility timeout, so consumers must tolerate
// duplicates.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue closed")

// Delivery is one claimed message. Ack removes it permanently; Nack returns
// it after the given delay with the attempt count preserved.
type Delivery struct {
	OrderID uuid.UUID
	// Attempts counts deliveries of this message, including this one.
	Attempts int

	ack  func(ctx context.Context) error
	nack func(ctx context.Context, delay time.Duration) error
}

func (d *Delivery) Ack(ctx context.Context) error { return d.ack(ctx) }

func (d *Delivery) Nack(ctx context.Context, delay time.Duration) error {
	return d.nack(ctx, delay)
}

// Queue is the order id transport between the API and the workers.
type Queue interface {
	// Enqueue appends a message carrying the order id.
	Enqueue(ctx context.Context, orderID uuid.UUID) error
	// Receive blocks until a message is available or ctx is done.
	Receive(ctx context.Context) (*Delivery, error)
	Close() error
}
