package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	redisReadyKey      = "careplan:queue:ready"
	redisProcessingKey = "careplan:queue:processing"
	redisDelayedKey    = "careplan:queue:delayed"
)

type redisMsg struct {
	OrderID  uuid.UUID `json:"order_id"`
	Attempts int       `json:"attempts"`
}

// RedisQueue keeps ready messages in a list and claimed or delayed messages
// in sorted sets scored by their redelivery deadline. Every Receive first
// promotes due members back onto the ready list, which doubles as the reaper
// for workers that died mid-message.
type RedisQueue struct {
	rdb        *goredis.Client
	visibility time.Duration
}

func NewRedisQueue(redisURL string, visibility time.Duration) (*RedisQueue, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &RedisQueue{rdb: rdb, visibility: visibility}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, orderID uuid.UUID) error {
	raw, err := json.Marshal(redisMsg{OrderID: orderID})
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, redisReadyKey, raw).Err()
}

func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		if err := q.promote(ctx, redisDelayedKey); err != nil {
			return nil, err
		}
		if err := q.promote(ctx, redisProcessingKey); err != nil {
			return nil, err
		}

		raw, err := q.rdb.BRPop(ctx, time.Second, redisReadyKey).Result()
		if errors.Is(err, goredis.Nil) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				continue
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		var msg redisMsg
		if err := json.Unmarshal([]byte(raw[1]), &msg); err != nil {
			// Unparseable payloads are dropped rather than poisoning
			// the queue forever.
			continue
		}
		msg.Attempts++
		member, err := json.Marshal(msg)
		if err != nil {
			return nil, err
		}
		deadline := float64(time.Now().Add(q.visibility).Unix())
		if err := q.rdb.ZAdd(ctx, redisProcessingKey, goredis.Z{Score: deadline, Member: string(member)}).Err(); err != nil {
			return nil, err
		}
		return q.delivery(msg, string(member)), nil
	}
}

// promote moves due members of a deadline-scored set back onto the ready
// list.
func (q *RedisQueue) promote(ctx context.Context, key string) error {
	now := fmt.Sprintf("%d", time.Now().Unix())
	members, err := q.rdb.ZRangeByScore(ctx, key, &goredis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return err
	}
	for _, m := range members {
		removed, err := q.rdb.ZRem(ctx, key, m).Result()
		if err != nil {
			return err
		}
		// Another worker may have promoted it first.
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, redisReadyKey, m).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *RedisQueue) delivery(msg redisMsg, member string) *Delivery {
	return &Delivery{
		OrderID:  msg.OrderID,
		Attempts: msg.Attempts,
		ack: func(ctx context.Context) error {
			return q.rdb.ZRem(ctx, redisProcessingKey, member).Err()
		},
		nack: func(ctx context.Context, delay time.Duration) error {
			if err := q.rdb.ZRem(ctx, redisProcessingKey, member).Err(); err != nil {
				return err
			}
			score := float64(time.Now().Add(delay).Unix())
			return q.rdb.ZAdd(ctx, redisDelayedKey, goredis.Z{Score: score, Member: member}).Err()
		},
	}
}

func (q *RedisQueue) Close() error { return q.rdb.Close() }
