// Package worker consumes queued order ids and generates care plan
// documents for them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/careplan/internal/domain/careplan"
	"github.com/carebridge/careplan/internal/domain/orders"
	"github.com/carebridge/careplan/internal/llm"
	"github.com/carebridge/careplan/internal/queue"
)

// Pool runs a fixed number of consumers against the queue. Each delivery is
// processed end to end: claim the order, render the prompt, call the
// generator, persist the document, and settle the message.
type Pool struct {
	queue     queue.Queue
	orders    orders.OrderRepository
	reader    careplan.OrderReader
	plans     careplan.Repository
	generator llm.Generator
	tx        orders.TxRunner

	workers int
	timeout time.Duration
	retry   RetryPolicy
	model   string
	log     zerolog.Logger
}

type Config struct {
	Workers           int
	GenerationTimeout time.Duration
	Retry             RetryPolicy
	// Model is recorded on generated documents.
	Model string
}

func NewPool(q queue.Queue, orderRepo orders.OrderRepository, reader careplan.OrderReader,
	plans careplan.Repository, gen llm.Generator, tx orders.TxRunner, cfg Config, log zerolog.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = time.Minute
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if tx == nil {
		tx = orders.NopTx
	}
	return &Pool{
		queue:     q,
		orders:    orderRepo,
		reader:    reader,
		plans:     plans,
		generator: gen,
		tx:        tx,
		workers:   cfg.Workers,
		timeout:   cfg.GenerationTimeout,
		retry:     cfg.Retry,
		model:     cfg.Model,
		log:       log.With().Str("component", "worker").Logger(),
	}
}

// Run blocks until ctx is canceled and all workers have drained.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.consume(ctx, n)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) consume(ctx context.Context, n int) {
	log := p.log.With().Int("worker", n).Logger()
	for {
		d, err := p.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("receive failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		p.process(ctx, d, log)
	}
}

// process settles the delivery in every path: ack for handled or stale
// messages, nack for transient failures that still have attempts left.
func (p *Pool) process(ctx context.Context, d *queue.Delivery, log zerolog.Logger) {
	log = log.With().Str("order_id", d.OrderID.String()).Int("attempt", d.Attempts).Logger()

	order, err := p.orders.GetByID(ctx, d.OrderID)
	if err != nil {
		// Unknown order: nothing to generate for, drop the message.
		log.Warn().Err(err).Msg("order not found, dropping message")
		_ = d.Ack(ctx)
		return
	}

	switch order.Status {
	case orders.StatusCompleted, orders.StatusFailed:
		// Stale redelivery of an order that already reached a terminal
		// state, possibly via a concurrent regenerate.
		_ = d.Ack(ctx)
		return
	case orders.StatusPending:
		claimed, err := p.orders.ClaimProcessing(ctx, d.OrderID)
		if err != nil {
			log.Error().Err(err).Msg("claim failed")
			_ = d.Nack(ctx, p.retry.Backoff(d.Attempts))
			return
		}
		if !claimed {
			// Lost the race to another worker.
			_ = d.Ack(ctx)
			return
		}
	case orders.StatusProcessing:
		if d.Attempts <= 1 {
			// First delivery but another worker already holds the
			// order, so this message is a duplicate.
			_ = d.Ack(ctx)
			return
		}
		// Redelivery after a visibility timeout: the previous holder
		// died mid-generation. Take the order over.
		log.Warn().Msg("resuming order abandoned mid-generation")
	}

	if p.retry.Exhausted(d.Attempts - 1) {
		p.fail(ctx, d.OrderID, fmt.Sprintf("generation failed after %d attempts", d.Attempts-1), log)
		_ = d.Ack(ctx)
		return
	}

	if err := p.generate(ctx, d.OrderID); err != nil {
		if llm.IsTransient(err) && !p.retry.Exhausted(d.Attempts) {
			delay := p.retry.Backoff(d.Attempts)
			log.Warn().Err(err).Dur("backoff", delay).Msg("transient generation failure, retrying")
			_ = d.Nack(ctx, delay)
			return
		}
		log.Error().Err(err).Msg("generation failed")
		p.fail(ctx, d.OrderID, failureMessage(err), log)
		_ = d.Ack(ctx)
		return
	}

	log.Info().Msg("care plan generated")
	_ = d.Ack(ctx)
}

func (p *Pool) generate(ctx context.Context, orderID uuid.UUID) error {
	detail, err := p.reader.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order detail: %w", err)
	}
	prompt := careplan.BuildPrompt(detail)

	genCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	content, err := p.generator.Generate(genCtx, prompt)
	if err != nil {
		return err
	}

	if missing := careplan.MissingSections(content); missing != nil {
		// Incomplete output is usually model variance, so it retries
		// like a transient failure.
		return &llm.Error{
			Message:   "generated document missing required sections: " + strings.Join(missing, ", "),
			Transient: true,
		}
	}

	return p.tx(ctx, func(txCtx context.Context) error {
		plan := &careplan.CarePlan{OrderID: orderID, Content: content, Model: p.model}
		if err := p.plans.Upsert(txCtx, plan); err != nil {
			return fmt.Errorf("save care plan: %w", err)
		}
		if err := p.orders.SetStatus(txCtx, orderID, orders.StatusCompleted, nil); err != nil {
			return fmt.Errorf("complete order: %w", err)
		}
		return nil
	})
}

func (p *Pool) fail(ctx context.Context, orderID uuid.UUID, msg string, log zerolog.Logger) {
	if err := p.orders.SetStatus(ctx, orderID, orders.StatusFailed, &msg); err != nil {
		log.Error().Err(err).Msg("could not mark order failed")
	}
}

// failureMessage is the client-visible error stored on the order. Raw
// provider responses stay in the logs only.
func failureMessage(err error) string {
	var lerr *llm.Error
	if errors.As(err, &lerr) {
		if strings.Contains(lerr.Message, "missing required sections") {
			return lerr.Message
		}
		if lerr.StatusCode != 0 {
			return fmt.Sprintf("generation service rejected the request (http %d)", lerr.StatusCode)
		}
		return "generation service returned an unusable document"
	}
	return "care plan generation failed"
}
