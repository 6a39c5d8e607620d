package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SystemMetrics периодически снимает показатели рантайма Go
type SystemMetrics struct {
	log          *logger.Logger
	goroutines   prometheus.Gauge
	memoryAlloc  prometheus.Gauge
	memoryTotal  prometheus.Gauge
	memorySystem prometheus.Gauge
	gcCycles     prometheus.Gauge

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSystemMetrics создает новые системные метрики
func NewSystemMetrics(registry *prometheus.Registry, log *logger.Logger) *SystemMetrics {
	factory := promauto.With(registry)

	return &SystemMetrics{
		log: log,
		goroutines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "system_goroutines",
			Help: "Current number of goroutines",
		}),
		memoryAlloc: factory.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_alloc_bytes",
			Help: "Currently allocated memory in bytes",
		}),
		memoryTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_total_alloc_bytes",
			Help: "Total memory allocation in bytes",
		}),
		memorySystem: factory.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_system_bytes",
			Help: "Total memory obtained from system in bytes",
		}),
		gcCycles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "system_gc_cycles",
			Help: "Number of completed GC cycles",
		}),
	}
}

// Record снимает показатели один раз
func (m *SystemMetrics) Record() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAlloc.Set(float64(memStats.Alloc))
	m.memoryTotal.Set(float64(memStats.TotalAlloc))
	m.memorySystem.Set(float64(memStats.Sys))
	m.gcCycles.Set(float64(memStats.NumGC))
}

// Start запускает запись метрик с заданным интервалом
func (m *SystemMetrics) Start(ctx context.Context, interval time.Duration) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.Record()
		for {
			select {
			case <-ticker.C:
				m.Record()
			case <-ctx.Done():
				return
			}
		}
	}()
	m.log.Infow("System metrics recording started", "interval", interval)
}

// Stop останавливает запись метрик
func (m *SystemMetrics) Stop() {
	m.once.Do(func() {
		if m.cancel == nil {
			return
		}
		m.cancel()
		<-m.done
		m.log.Info("System metrics recording stopped")
	})
}
