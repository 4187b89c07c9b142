// Package load drives concurrent virtual users through ramp-up, sustain and
// ramp-down phases and aggregates what they observe.
package load

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
)

// Workload is one unit of work a virtual user repeats. vu is the 1-based
// user id.
type Workload func(ctx context.Context, vu int) error

var phaseEdges = map[models.LoadState]models.LoadState{
	models.LoadIdle:        models.LoadRampingUp,
	models.LoadRampingUp:   models.LoadSustaining,
	models.LoadSustaining:  models.LoadRampingDown,
	models.LoadRampingDown: models.LoadCompleted,
}

type Options struct {
	Clock   utils.Clock
	Sampler Sampler
	// Jitter returns values in [0, 1) and scales think time.
	Jitter func() float64
}

type LoadTester struct {
	logger    *zap.Logger
	cfg       models.LoadTestConfig
	clock     utils.Clock
	bus       *EventBus
	metrics   *Metrics
	collector *MetricsCollector
	health    *HealthMonitor
	jitter    func() float64

	mu           sync.Mutex
	state        models.LoadState
	cancel       context.CancelFunc
	sustainStart time.Time
	results      *models.LoadTestResults
}

func New(logger *zap.Logger, cfg models.LoadTestConfig, opts Options) (*LoadTester, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = utils.RealClock{}
	}
	bus := NewEventBus()
	metrics := NewMetrics()
	lt := &LoadTester{
		logger:    logger,
		cfg:       cfg,
		clock:     opts.Clock,
		bus:       bus,
		metrics:   metrics,
		collector: NewMetricsCollector(logger),
		health:    NewHealthMonitor(logger, cfg, opts.Sampler, opts.Clock, bus, metrics),
		jitter:    opts.Jitter,
		state:     models.LoadIdle,
	}
	metrics.setPhase("", models.LoadIdle)
	return lt, nil
}

func ValidateConfig(cfg models.LoadTestConfig) error {
	invalid := func(rule, msg string) error {
		return &models.ValidationError{Entity: "load test config", Rule: rule, Msg: msg}
	}
	switch {
	case cfg.Users <= 0:
		return invalid("users", "at least one virtual user is required")
	case cfg.RampUp < 0 || cfg.Sustain < 0 || cfg.RampDown < 0:
		return invalid("phase-duration", "phase durations cannot be negative")
	case cfg.ThinkTime < 0 || cfg.CallTimeout < 0 || cfg.HealthInterval < 0:
		return invalid("negative-duration", "think time, call timeout and health interval cannot be negative")
	case cfg.MaxRetries < 0 || cfg.ErrorBudget < 0 || cfg.RPS < 0:
		return invalid("negative-count", "retries, error budget and rps cannot be negative")
	case cfg.MemoryThreshold < 0 || cfg.MemoryThreshold > 100:
		return invalid("memory-threshold", "memory threshold must be within [0, 100]")
	}
	return nil
}

// Subscribe must be called before Run to see every event. The channel is
// closed after test_completed.
func (lt *LoadTester) Subscribe(buffer int) <-chan Event {
	return lt.bus.Subscribe(buffer)
}

func (lt *LoadTester) Metrics() *Metrics {
	return lt.metrics
}

func (lt *LoadTester) State() models.LoadState {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.state
}

// transition moves along a phase edge, or to STOPPED from any non-terminal
// state. It reports whether the move happened.
func (lt *LoadTester) transition(to models.LoadState) bool {
	lt.mu.Lock()
	from := lt.state
	if from.IsTerminal() || (to != models.LoadStopped && phaseEdges[from] != to) {
		lt.mu.Unlock()
		return false
	}
	lt.state = to
	if to == models.LoadSustaining {
		lt.sustainStart = time.Now()
	}
	lt.mu.Unlock()

	lt.metrics.setPhase(from, to)
	lt.bus.Publish(Event{Kind: EventPhaseChanged, At: lt.clock.Now(), From: from, To: to})
	lt.logger.Info("load test phase changed", zap.String("from", string(from)), zap.String("to", string(to)))
	return true
}

// Stop cancels the test. Virtual users exit before their next invocation.
func (lt *LoadTester) Stop() {
	lt.mu.Lock()
	cancel := lt.cancel
	state := lt.state
	lt.mu.Unlock()
	if cancel != nil {
		cancel()
		return
	}
	if state == models.LoadIdle {
		lt.transition(models.LoadStopped)
	}
}

// Run blocks until the test completes or is stopped. A tester runs once.
func (lt *LoadTester) Run(ctx context.Context, workload Workload) (*models.LoadTestResults, error) {
	if workload == nil {
		return nil, &models.ValidationError{Entity: "load test", Rule: "no-workload"}
	}
	lt.mu.Lock()
	if lt.state != models.LoadIdle {
		state := lt.state
		lt.mu.Unlock()
		return nil, fmt.Errorf("load test cannot start from state %s", state)
	}
	runCtx, cancel := context.WithCancel(ctx)
	lt.cancel = cancel
	lt.mu.Unlock()
	defer cancel()

	res := &models.LoadTestResults{TargetUsers: lt.cfg.Users, Start: lt.clock.Now()}
	lt.logger.Info("starting load test",
		zap.Int("users", lt.cfg.Users),
		zap.Duration("rampUp", lt.cfg.RampUp),
		zap.Duration("sustain", lt.cfg.Sustain),
		zap.Duration("rampDown", lt.cfg.RampDown),
		zap.Int("rps", lt.cfg.RPS))

	sched := NewScheduler(lt.logger, lt.cfg, lt.collector, lt.metrics, lt.bus, lt.State)
	if lt.jitter != nil {
		sched.jitter = lt.jitter
	}

	healthCtx, stopHealth := context.WithCancel(runCtx)
	var healthWG sync.WaitGroup
	healthWG.Add(1)
	go func() {
		defer healthWG.Done()
		defer utils.Recover(lt.logger)
		lt.health.Run(healthCtx)
	}()

	var sustained time.Duration
	if lt.transition(models.LoadRampingUp) {
		rampStart := time.Now()
		sched.RampUp(runCtx, rampStart, workload)
		sleep(runCtx, time.Until(rampStart.Add(lt.cfg.RampUp)))
	}
	if runCtx.Err() == nil && lt.transition(models.LoadSustaining) {
		start := time.Now()
		timer := time.NewTimer(lt.cfg.Sustain)
		select {
		case <-timer.C:
		case <-runCtx.Done():
		case <-sched.Idle():
			lt.logger.Info("every virtual user exited before the sustain phase ended")
		}
		timer.Stop()
		sustained = time.Since(start)
	}
	if runCtx.Err() == nil && lt.transition(models.LoadRampingDown) {
		sched.RampDown(runCtx, lt.cfg.RampDown)
	}
	sched.StopAll()
	sched.Wait()
	stopHealth()
	healthWG.Wait()

	final := models.LoadCompleted
	if runCtx.Err() != nil {
		final = models.LoadStopped
	}
	lt.transition(final)

	res.State = lt.State()
	res.End = lt.clock.Now()
	res.Duration = res.End.Sub(res.Start)
	res.UserStarts = sched.Offsets()
	lt.collector.Summarize(res, sustained)
	res.Health, res.StressEvents = lt.health.Samples()
	res.Thresholds = NewThresholdEvaluator(lt.logger, lt.cfg.Thresholds).Evaluate(res)
	res.DroppedEvents = lt.bus.Dropped()

	lt.mu.Lock()
	lt.results = res
	lt.mu.Unlock()

	lt.bus.Publish(Event{Kind: EventTestCompleted, At: res.End, Results: res})
	lt.bus.Close()
	lt.logger.Info("load test finished",
		zap.String("state", string(res.State)),
		zap.Int("achievedUsers", res.AchievedUsers),
		zap.Int64("totalRequests", res.TotalRequests),
		zap.Float64("errorRate", res.ErrorRate),
		zap.Duration("p95", res.P95ResponseTime),
		zap.Float64("throughput", res.Throughput))
	return res, nil
}

// Report returns the final results once the test has finished, and a live
// snapshot before that.
func (lt *LoadTester) Report() *models.LoadTestResults {
	lt.mu.Lock()
	if lt.results != nil {
		res := lt.results
		lt.mu.Unlock()
		return res
	}
	state := lt.state
	sustainStart := lt.sustainStart
	lt.mu.Unlock()

	res := &models.LoadTestResults{State: state, TargetUsers: lt.cfg.Users}
	var sustained time.Duration
	if !sustainStart.IsZero() {
		sustained = time.Since(sustainStart)
	}
	lt.collector.Summarize(res, sustained)
	res.Health, res.StressEvents = lt.health.Samples()
	return res
}
