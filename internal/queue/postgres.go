package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresQueue stores messages in the order_queue table. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never block on each other,
// and a claimed row stays invisible until its visibility deadline passes.
type PostgresQueue struct {
	pool       *pgxpool.Pool
	visibility time.Duration
	poll       time.Duration
}

func NewPostgresQueue(pool *pgxpool.Pool, visibility time.Duration) *PostgresQueue {
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &PostgresQueue{pool: pool, visibility: visibility, poll: time.Second}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, orderID uuid.UUID) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO order_queue (order_id, attempts, visible_at)
		VALUES ($1, 0, now())`, orderID)
	return err
}

func (q *PostgresQueue) Receive(ctx context.Context) (*Delivery, error) {
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()
	for {
		d, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *PostgresQueue) claim(ctx context.Context) (*Delivery, error) {
	var (
		msgID    int64
		orderID  uuid.UUID
		attempts int
	)
	err := q.pool.QueryRow(ctx, `
		UPDATE order_queue
		SET attempts = attempts + 1, visible_at = now() + $1
		WHERE id = (
			SELECT id FROM order_queue
			WHERE visible_at <= now()
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, order_id, attempts`,
		q.visibility).Scan(&msgID, &orderID, &attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &Delivery{
		OrderID:  orderID,
		Attempts: attempts,
		ack: func(ctx context.Context) error {
			_, err := q.pool.Exec(ctx, `DELETE FROM order_queue WHERE id = $1`, msgID)
			return err
		},
		nack: func(ctx context.Context, delay time.Duration) error {
			_, err := q.pool.Exec(ctx,
				`UPDATE order_queue SET visible_at = now() + $2 WHERE id = $1`, msgID, delay)
			return err
		},
	}, nil
}

func (q *PostgresQueue) Close() error { return nil }
