// Package monitor exports process health gauges for long-running commands.
package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Stats is one sample of process health
type Stats struct {
	Goroutines  int
	HeapAlloc   uint64
	HeapObjects uint64
	GCPause     time.Duration
	NumGC       uint32
}

// SystemMonitor samples runtime stats into gauges on an interval
type SystemMonitor struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	metrics struct {
		goroutines  prometheus.Gauge
		heapObjects prometheus.Gauge
		heapAlloc   prometheus.Gauge
		gcPause     prometheus.Gauge
	}
	wg sync.WaitGroup
}

// NewSystemMonitor registers the gauges on reg and starts sampling every
// interval until ctx is done or Cleanup is called.
func NewSystemMonitor(ctx context.Context, namespace string, reg prometheus.Registerer, interval time.Duration, logger *zap.Logger) *SystemMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	m := &SystemMonitor{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}

	factory := promauto.With(reg)
	m.metrics.goroutines = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_goroutines",
		Help:      "Current number of goroutines",
	})
	m.metrics.heapObjects = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_heap_objects",
		Help:      "Current number of heap objects",
	})
	m.metrics.heapAlloc = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_heap_alloc_bytes",
		Help:      "Current heap allocation in bytes",
	})
	m.metrics.gcPause = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_last_gc_pause_seconds",
		Help:      "Duration of the most recent GC pause",
	})

	m.collect()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.monitor(interval)
	}()
	return m
}

func (m *SystemMonitor) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			stats := m.collect()
			m.logger.Debug("Process stats",
				zap.Int("goroutines", stats.Goroutines),
				zap.Uint64("heap_alloc", stats.HeapAlloc),
				zap.Duration("gc_pause", stats.GCPause),
			)
		}
	}
}

// collect samples the runtime and updates the gauges
func (m *SystemMonitor) collect() Stats {
	stats := Sample()
	m.metrics.goroutines.Set(float64(stats.Goroutines))
	m.metrics.heapObjects.Set(float64(stats.HeapObjects))
	m.metrics.heapAlloc.Set(float64(stats.HeapAlloc))
	m.metrics.gcPause.Set(stats.GCPause.Seconds())
	return stats
}

// Sample reads the current runtime stats
func Sample() Stats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return Stats{
		Goroutines:  runtime.NumGoroutine(),
		HeapAlloc:   memStats.HeapAlloc,
		HeapObjects: memStats.HeapObjects,
		GCPause:     time.Duration(memStats.PauseNs[(memStats.NumGC+255)%256]),
		NumGC:       memStats.NumGC,
	}
}

// Cleanup stops sampling and waits for the sampler to exit
func (m *SystemMonitor) Cleanup() {
	m.cancel()
	m.wg.Wait()
}
