package prepare

import (
	"sync"

	"github.com/proposalcore/pricing-engine/internal/domain"
	"github.com/proposalcore/pricing-engine/internal/telemetry/metrics"
)

// call is one in-flight preparation shared by every caller waiting on the
// same proposal id.
type call struct {
	done   chan struct{}
	result *domain.FrozenInput
	err    error
}

// Coalescer collapses concurrent preparation requests for the same
// proposal id into a single underlying fetch, so a burst of callers
// pricing the same proposal at once never stampedes the store or the
// rule compiler.
type Coalescer struct {
	mu      sync.Mutex
	inFlight map[string]*call
	metrics *metrics.PipelineMetrics
}

func NewCoalescer(m *metrics.PipelineMetrics) *Coalescer {
	return &Coalescer{inFlight: make(map[string]*call), metrics: m}
}

// Do runs fn for key if no other caller is already preparing it; otherwise
// it blocks until that caller's result is ready and returns it too.
func (c *Coalescer) Do(key string, fn func() (*domain.FrozenInput, error)) (*domain.FrozenInput, error) {
	c.mu.Lock()
	if existing, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		c.metrics.CoalescedRequests.Inc()
		<-existing.done
		return existing.result, existing.err
	}

	cl := &call{done: make(chan struct{})}
	c.inFlight[key] = cl
	c.mu.Unlock()

	cl.result, cl.err = fn()
	close(cl.done)

	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()

	return cl.result, cl.err
}
