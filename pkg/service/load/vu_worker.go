package load

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.keploy.io/testengine/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// errStopped means the worker was stopped before an invocation was issued.
var errStopped = errors.New("virtual user stopped")

// VUWorker is one virtual user. Its stop token is checked between
// invocations; a call already in flight keeps its own timeout.
type VUWorker struct {
	id        int
	logger    *zap.Logger
	cfg       models.LoadTestConfig
	workload  Workload
	collector *MetricsCollector
	metrics   *Metrics
	limiter   *rate.Limiter
	bus       *EventBus
	phase     func() models.LoadState
	jitter    func() float64
	now       func() time.Time

	stopCtx context.Context
	stop    context.CancelFunc
}

func (w *VUWorker) run() {
	w.collector.UserStarted(w.id, w.now())
	w.metrics.ActiveUsers.Inc()
	w.logger.Debug("virtual user started", zap.Int("vuID", w.id))

	var (
		failures int
		exceeded bool
	)
	defer func() {
		w.collector.UserStopped(w.id, w.now(), exceeded)
		w.metrics.ActiveUsers.Dec()
		requests, errs := w.collector.userCounts(w.id)
		w.bus.Publish(Event{Kind: EventUserCompleted, At: w.now(), UserID: w.id, Requests: requests, Errors: errs})
		w.logger.Debug("virtual user completed",
			zap.Int("vuID", w.id),
			zap.Int64("requests", requests),
			zap.Int64("errors", errs),
			zap.Bool("budgetExceeded", exceeded))
	}()

	for {
		if w.stopCtx.Err() != nil {
			return
		}
		phase := w.phase()
		latency, err := w.invoke()
		if errors.Is(err, errStopped) {
			return
		}
		failed := err != nil
		w.collector.Record(w.id, phase, latency, failed)
		w.metrics.observeRequest(latency, failed)
		if failed {
			failures++
			w.logger.Debug("workload invocation failed", zap.Int("vuID", w.id), zap.Error(err))
			if w.cfg.ErrorBudget > 0 && failures > w.cfg.ErrorBudget {
				exceeded = true
				w.logger.Info("virtual user exhausted its error budget", zap.Int("vuID", w.id), zap.Int("failures", failures))
				return
			}
		}
		if w.cfg.ThinkTime > 0 && !sleep(w.stopCtx, w.thinkTime()) {
			return
		}
	}
}

// thinkTime scales the base think time by a factor in [0.5, 1.5).
func (w *VUWorker) thinkTime() time.Duration {
	return time.Duration(float64(w.cfg.ThinkTime) * (0.5 + w.jitter()))
}

// invoke retries a failing call up to MaxRetries times. Only the last
// attempt's latency is reported.
func (w *VUWorker) invoke() (time.Duration, error) {
	attempts := 1 + max(0, w.cfg.MaxRetries)
	var (
		latency time.Duration
		err     error
	)
	for a := 0; a < attempts; a++ {
		if a > 0 && w.stopCtx.Err() != nil {
			break
		}
		if w.limiter != nil {
			if werr := w.limiter.Wait(w.stopCtx); werr != nil {
				if a == 0 {
					return 0, errStopped
				}
				break
			}
		}
		latency, err = w.call()
		if err == nil {
			return latency, nil
		}
	}
	return latency, err
}

func (w *VUWorker) call() (latency time.Duration, err error) {
	ctx := context.WithoutCancel(w.stopCtx)
	if w.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.CallTimeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		latency = time.Since(start)
		if r := recover(); r != nil {
			err = fmt.Errorf("workload panicked: %v", r)
			return
		}
		if w.cfg.CallTimeout <= 0 {
			return
		}
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("invocation timed out after %s: %w", w.cfg.CallTimeout, err)
		} else if err == nil && latency > w.cfg.CallTimeout {
			err = fmt.Errorf("invocation took %s, exceeding the %s timeout", latency, w.cfg.CallTimeout)
		}
	}()
	return 0, w.workload(ctx, w.id)
}

// sleep waits for d and reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
