// Package exclusive provides the token broker behind exclusive node
// evaluation. At most one holder per domain key runs at any instant, and
// waiters are served in request order.
//
// A Broker is shared by every execution model that must respect the same
// exclusivity domain. Default returns the process-wide broker; the redislock
// subpackage extends domains across processes.
package exclusive

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Broker hands out the token of an exclusivity domain.
type Broker interface {
	// Acquire blocks until the caller holds the token of domain or ctx is
	// done. The returned release function is idempotent.
	Acquire(ctx context.Context, domain string) (release func(), err error)
}

// Local is an in-process broker with one FIFO token per domain.
type Local struct {
	mu     sync.Mutex
	tokens map[string]*semaphore.Weighted
}

// NewLocal creates an empty in-process broker.
func NewLocal() *Local {
	return &Local{tokens: make(map[string]*semaphore.Weighted)}
}

var defaultBroker = NewLocal()

// Default returns the process-wide broker.
func Default() *Local { return defaultBroker }

func (l *Local) token(domain string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[domain]
	if !ok {
		t = semaphore.NewWeighted(1)
		l.tokens[domain] = t
	}
	return t
}

// Acquire implements Broker. semaphore.Weighted serves waiters in FIFO order.
func (l *Local) Acquire(ctx context.Context, domain string) (func(), error) {
	t := l.token(domain)
	if err := t.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { t.Release(1) }) }, nil
}

// TryAcquire takes the token only if it is free.
func (l *Local) TryAcquire(domain string) (func(), bool) {
	t := l.token(domain)
	if !t.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { t.Release(1) }) }, true
}
