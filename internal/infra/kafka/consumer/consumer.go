package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/time/rate"

	"github.com/printforge/preflight/internal/config"
)

// jobHandler defines the interface for handling preflight job messages.
type jobHandler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

// Consumer represents a Kafka consumer with a bounded worker pool. A
// dispatcher goroutine fetches messages and hands them to workers; a
// rate limiter caps how many jobs may start per second so a burst of
// uploads cannot saturate the host with external converter processes.
type Consumer struct {
	Client   *wbfkafka.Consumer
	handler  jobHandler
	cfg      *config.Kafka
	strategy retry.Strategy
	workers  int
	limiter  *rate.Limiter
}

// New creates a new Consumer.
// - cfg: Kafka configuration struct
// - s: retry strategy
// - h: handler for processing preflight job messages
// - workers: number of concurrent job workers
// - perSecond: job start rate cap across all workers
func New(
	cfg *config.Kafka,
	s retry.Strategy,
	h jobHandler,
	workers int,
	perSecond float64,
) *Consumer {
	consumer := wbfkafka.NewConsumer(cfg.Brokers, cfg.Topic, cfg.GroupID)

	if workers < 1 {
		workers = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), workers)
	}

	return &Consumer{
		Client:   consumer,
		handler:  h,
		cfg:      cfg,
		strategy: s,
		workers:  workers,
		limiter:  limiter,
	}
}

// Consume fetches messages from Kafka and processes them on the worker
// pool, committing offsets after successful processing. It stops
// gracefully on context cancellation once in-flight jobs finish.
func (c *Consumer) Consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	zlog.Logger.Info().
		Str("topic", c.cfg.Topic).
		Int("workers", c.workers).
		Msg("starting consumer")

	jobs := make(chan kafka.Message)

	var workers sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for msg := range jobs {
				c.handle(ctx, msg)
			}
		}()
	}
	defer func() {
		close(jobs)
		workers.Wait()
	}()

	for {
		// Exit if context is canceled (graceful shutdown).
		if ctx.Err() != nil {
			zlog.Logger.Info().Msg("shutdown signal received, stopping consumer")
			return
		}

		// Fetch a message from Kafka with retries.
		var msg kafka.Message
		err := retry.Do(func() error {
			var fetchErr error
			msg, fetchErr = c.Client.Fetch(ctx)
			return fetchErr
		}, c.strategy)

		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			// Log error and retry after a short backoff.
			zlog.Logger.Err(err).Msg("failed to fetch message")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := c.limiter.Wait(ctx); err != nil {
			continue
		}

		select {
		case jobs <- msg:
		case <-ctx.Done():
		}
	}
}

// handle processes one message and commits it on success.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	if err := c.handler.Handle(ctx, msg); err != nil {
		zlog.Logger.Err(err).
			Str("message", string(msg.Value)).
			Msg("failed to process job")
		return
	}

	// Commit the message with retries.
	err := retry.Do(func() error {
		return c.Client.Commit(ctx, msg)
	}, c.strategy)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to commit message after retries")
		return
	}

	zlog.Logger.Info().
		Int64("offset", msg.Offset).
		Msg("message handled successfully")
}
