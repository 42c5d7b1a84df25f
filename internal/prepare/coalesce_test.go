package prepare

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/proposalcore/pricing-engine/internal/domain"
)

func TestCoalescer_ConcurrentCallersShareOneResult(t *testing.T) {
	c := NewCoalescer(testMetrics())

	var calls int32
	fn := func() (*domain.FrozenInput, error) {
		atomic.AddInt32(&calls, 1)
		// Stay in flight long enough for every caller to join this call.
		time.Sleep(50 * time.Millisecond)
		return &domain.FrozenInput{ProposalID: "p1"}, nil
	}

	var wg sync.WaitGroup
	results := make([]*domain.FrozenInput, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			res, err := c.Do("p1", fn)
			assert.NoError(t, err)
			results[idx] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "p1", r.ProposalID)
	}
}

func TestCoalescer_DistinctKeysRunIndependently(t *testing.T) {
	c := NewCoalescer(testMetrics())

	r1, err := c.Do("a", func() (*domain.FrozenInput, error) {
		return &domain.FrozenInput{ProposalID: "a"}, nil
	})
	assert.NoError(t, err)
	r2, err := c.Do("b", func() (*domain.FrozenInput, error) {
		return &domain.FrozenInput{ProposalID: "b"}, nil
	})
	assert.NoError(t, err)

	assert.Equal(t, "a", r1.ProposalID)
	assert.Equal(t, "b", r2.ProposalID)
}
