package exec

import (
	"runtime"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/exclusive"
)

type config struct {
	workers   int64
	broker    exclusive.Broker
	observers []Listener
}

func defaultConfig() config {
	return config{
		workers: int64(max(4, runtime.NumCPU())),
		broker:  exclusive.Default(),
	}
}

// Option configures a Model.
type Option func(*config)

// WithWorkers bounds the number of detached evaluations running at once.
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = int64(n)
		}
	}
}

// WithBroker sets the broker handing out exclusivity tokens. Models sharing
// a broker never run two exclusive nodes of one domain at the same time.
func WithBroker(b exclusive.Broker) Option {
	return func(c *config) {
		if b != nil {
			c.broker = b
		}
	}
}

// WithObserver registers a listener before the model starts observing.
func WithObserver(fn Listener) Option {
	return func(c *config) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}
