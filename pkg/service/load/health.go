package load

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
)

// Sampler reads one set of process health indicators.
type Sampler func() models.HealthSample

// RuntimeSampler reports system memory in use as a percentage of total memory,
// the one minute load average and the process resident set where /proc exists.
// Elsewhere only the goroutine count is set.
func RuntimeSampler() models.HealthSample {
	s := models.HealthSample{Goroutines: runtime.NumGoroutine()}
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return s
	}
	sampleProc(fs, &s)
	return s
}

func sampleProc(fs procfs.FS, s *models.HealthSample) {
	if mi, err := fs.Meminfo(); err == nil {
		s.MemoryPercent = memoryInUse(mi)
	}
	if la, err := fs.LoadAvg(); err == nil {
		s.LoadAverage = la.Load1
	}
	if p, err := fs.Self(); err == nil {
		if st, err := p.Stat(); err == nil {
			s.ResidentBytes = int64(st.ResidentMemory())
		}
	}
}

// memoryInUse falls back to MemFree+Buffers+Cached on kernels without MemAvailable.
func memoryInUse(mi procfs.Meminfo) float64 {
	if mi.MemTotal == nil || *mi.MemTotal == 0 {
		return 0
	}
	total := *mi.MemTotal
	var avail uint64
	if mi.MemAvailable != nil {
		avail = *mi.MemAvailable
	} else {
		for _, v := range []*uint64{mi.MemFree, mi.Buffers, mi.Cached} {
			if v != nil {
				avail += *v
			}
		}
	}
	if avail > total {
		avail = total
	}
	return float64(total-avail) / float64(total) * 100
}

// HealthMonitor samples on a fixed interval and publishes a system_stress
// event whenever a sample crosses a threshold. It never pauses the test.
type HealthMonitor struct {
	logger          *zap.Logger
	interval        time.Duration
	memoryThreshold float64
	loadThreshold   float64
	sampler         Sampler
	clock           utils.Clock
	bus             *EventBus
	metrics         *Metrics

	mu      sync.Mutex
	samples []models.HealthSample
	stress  int
}

func NewHealthMonitor(logger *zap.Logger, cfg models.LoadTestConfig, sampler Sampler, clock utils.Clock, bus *EventBus, metrics *Metrics) *HealthMonitor {
	if sampler == nil {
		sampler = RuntimeSampler
	}
	return &HealthMonitor{
		logger:          logger,
		interval:        cfg.HealthInterval,
		memoryThreshold: cfg.MemoryThreshold,
		loadThreshold:   cfg.LoadThreshold,
		sampler:         sampler,
		clock:           clock,
		bus:             bus,
		metrics:         metrics,
	}
}

// Run samples until ctx is done.
func (h *HealthMonitor) Run(ctx context.Context) {
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sample()
		}
	}
}

func (h *HealthMonitor) sample() {
	s := h.sampler()
	s.At = h.clock.Now()
	stressed := (h.memoryThreshold > 0 && s.MemoryPercent > h.memoryThreshold) ||
		(h.loadThreshold > 0 && s.LoadAverage > h.loadThreshold)

	h.mu.Lock()
	h.samples = append(h.samples, s)
	if stressed {
		h.stress++
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.observeHealth(s)
	}
	if stressed {
		h.logger.Warn("system under stress",
			zap.Float64("memoryPercent", s.MemoryPercent),
			zap.Float64("loadAverage", s.LoadAverage))
		h.bus.Publish(Event{Kind: EventSystemStress, At: s.At, MemoryPercent: s.MemoryPercent, LoadAverage: s.LoadAverage})
	}
}

func (h *HealthMonitor) Samples() ([]models.HealthSample, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.HealthSample(nil), h.samples...), h.stress
}
