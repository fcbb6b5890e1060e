package counter

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus buffers increments locally and adds them to a prometheus counter on Flush.
type Prometheus struct {
	c prometheus.Counter

	mu      sync.Mutex
	pending int64
}

// NewPrometheus wraps a prometheus counter.
func NewPrometheus(c prometheus.Counter) *Prometheus {
	return &Prometheus{c: c}
}

// Increment implements Counter.
func (p *Prometheus) Increment() { p.IncrementBy(1) }

// IncrementBy implements Counter.
func (p *Prometheus) IncrementBy(n int64) {
	if n < 0 {
		return // prometheus counters are monotonic
	}

	p.mu.Lock()
	p.pending += n
	p.mu.Unlock()
}

// Flush implements Counter.
func (p *Prometheus) Flush() error {
	p.mu.Lock()
	n := p.pending
	p.pending = 0
	p.mu.Unlock()

	if n != 0 {
		p.c.Add(float64(n))
	}
	return nil
}
