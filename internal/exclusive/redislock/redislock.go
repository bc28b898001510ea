// Package redislock implements an exclusivity broker on top of Redis so that
// execution models in different processes can share a domain.
//
// It is a ticket lock: every waiter draws a ticket with INCR on the domain's
// "next" key and proceeds once the domain's "done" counter has reached the
// ticket before its own. Releasing increments "done". Tickets are served in
// draw order.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	backend "github.com/redis/go-redis/v9"
)

var (
	// ErrAcquire is returned when Redis fails while drawing or waiting for a ticket.
	ErrAcquire = errors.New("failed to acquire exclusivity token")
)

const defaultPoll = 10 * time.Millisecond

// Broker implements exclusive.Broker using Redis.
type Broker struct {
	client backend.UniversalClient
	prefix string
	poll   time.Duration
}

// Option configures a Broker.
type Option func(*Broker)

// WithPollInterval sets how often a waiter checks whether its turn has come.
func WithPollInterval(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.poll = d
		}
	}
}

// New creates a broker storing its counters under prefix.
func New(client backend.UniversalClient, prefix string, opts ...Option) *Broker {
	b := &Broker{client: client, prefix: prefix, poll: defaultPoll}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) keys(domain string) (next, done string) {
	return b.prefix + "exclusive:" + domain + ":next", b.prefix + "exclusive:" + domain + ":done"
}

// Acquire draws a ticket and waits for its turn.
func (b *Broker) Acquire(ctx context.Context, domain string) (func(), error) {
	nextKey, doneKey := b.keys(domain)

	ticket, err := b.client.Incr(ctx, nextKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: draw ticket: %w", ErrAcquire, err)
	}

	if err := b.waitTurn(ctx, doneKey, ticket); err != nil {
		// the ticket is already drawn; hand it on once its turn comes so the
		// queue behind it does not stall
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if b.waitTurn(bg, doneKey, ticket) == nil {
				b.client.Incr(bg, doneKey)
			}
		}()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.client.Incr(context.Background(), doneKey)
		})
	}, nil
}

func (b *Broker) waitTurn(ctx context.Context, doneKey string, ticket int64) error {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		done, err := b.client.Get(ctx, doneKey).Int64()
		if err != nil && !errors.Is(err, backend.Nil) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: read counter: %w", ErrAcquire, err)
		}
		if done >= ticket-1 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
