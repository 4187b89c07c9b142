package load

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.keploy.io/testengine/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Scheduler starts virtual users at evenly staggered offsets and stops them
// in reverse start order.
type Scheduler struct {
	logger    *zap.Logger
	cfg       models.LoadTestConfig
	collector *MetricsCollector
	metrics   *Metrics
	bus       *EventBus
	limiter   *rate.Limiter
	phase     func() models.LoadState
	jitter    func() float64
	now       func() time.Time

	wg      sync.WaitGroup
	mu      sync.Mutex
	workers []*VUWorker
	offsets []time.Duration
}

func NewScheduler(logger *zap.Logger, cfg models.LoadTestConfig, collector *MetricsCollector, metrics *Metrics, bus *EventBus, phase func() models.LoadState) *Scheduler {
	// the limiter is shared by every virtual user
	var lim *rate.Limiter
	if cfg.RPS > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.RPS)
	}
	return &Scheduler{
		logger:    logger,
		cfg:       cfg,
		collector: collector,
		metrics:   metrics,
		bus:       bus,
		limiter:   lim,
		phase:     phase,
		jitter:    rand.Float64,
		now:       time.Now,
	}
}

// StartOffset is when user i (zero based) starts relative to the ramp-up.
func StartOffset(i, users int, rampUp time.Duration) time.Duration {
	if users <= 0 {
		return 0
	}
	return time.Duration(int64(rampUp) * int64(i) / int64(users))
}

// RampUp spawns every user at its offset from start. It returns early when
// ctx ends, leaving the remaining users unstarted.
func (s *Scheduler) RampUp(ctx context.Context, start time.Time, workload Workload) {
	for i := 0; i < s.cfg.Users; i++ {
		at := start.Add(StartOffset(i, s.cfg.Users, s.cfg.RampUp))
		if !sleep(ctx, time.Until(at)) {
			s.logger.Debug("ramp-up interrupted", zap.Int("started", i))
			return
		}
		s.spawn(ctx, i+1, time.Since(start), workload)
	}
}

func (s *Scheduler) spawn(ctx context.Context, id int, offset time.Duration, workload Workload) {
	stopCtx, stop := context.WithCancel(ctx)
	w := &VUWorker{
		id:        id,
		logger:    s.logger,
		cfg:       s.cfg,
		workload:  workload,
		collector: s.collector,
		metrics:   s.metrics,
		limiter:   s.limiter,
		bus:       s.bus,
		phase:     s.phase,
		jitter:    s.jitter,
		now:       s.now,
		stopCtx:   stopCtx,
		stop:      stop,
	}
	s.mu.Lock()
	s.workers = append(s.workers, w)
	s.offsets = append(s.offsets, offset)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.run()
	}()
}

// RampDown stops users newest first, spread evenly over d.
func (s *Scheduler) RampDown(ctx context.Context, d time.Duration) {
	s.mu.Lock()
	workers := append([]*VUWorker(nil), s.workers...)
	s.mu.Unlock()

	start := time.Now()
	n := len(workers)
	for j := 0; j < n; j++ {
		at := start.Add(StartOffset(j, n, d))
		if !sleep(ctx, time.Until(at)) {
			return
		}
		workers[n-1-j].stop()
	}
}

func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers {
		w.stop()
	}
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Idle is closed once every started user has exited. Call it only after
// ramp-up has finished spawning.
func (s *Scheduler) Idle() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	return ch
}

func (s *Scheduler) Offsets() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.offsets...)
}
