package prepare

import (
	"sync"

	"github.com/proposalcore/pricing-engine/internal/telemetry/metrics"
)

var (
	testMetricsOnce sync.Once
	testMetricsInst *metrics.PipelineMetrics
)

// testMetrics returns a process-wide PipelineMetrics instance. Prometheus
// counters register against the default registry, so every test in this
// package must share one instance rather than constructing its own.
func testMetrics() *metrics.PipelineMetrics {
	testMetricsOnce.Do(func() {
		testMetricsInst = metrics.New()
	})
	return testMetricsInst
}
