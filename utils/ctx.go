package utils

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

var (
	cancelMu sync.Mutex
	cancel   context.CancelFunc
)

// NewCtx returns a context that is cancelled on SIGINT or SIGTERM.
func NewCtx() context.Context {
	ctx, c := context.WithCancel(context.Background())
	SetCancel(c)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigs:
			ExecCancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()

	return ctx
}

// Stop requires a reason so that every shutdown can be traced back to its caller.
func Stop(logger *zap.Logger, reason string) error {
	if logger == nil {
		return errors.New("logger is not set")
	}
	cancelMu.Lock()
	c := cancel
	cancelMu.Unlock()
	if c == nil {
		err := errors.New("cancel function is not set")
		LogError(logger, err, "failed stopping testengine")
		return err
	}

	if reason == "" {
		err := errors.New("cannot stop testengine without a reason")
		LogError(logger, err, "failed stopping testengine")
		return err
	}

	logger.Info("stopping testengine", zap.String("reason", reason))
	ExecCancel()
	return nil
}

func ExecCancel() {
	cancelMu.Lock()
	c := cancel
	cancelMu.Unlock()
	if c != nil {
		c()
	}
}

func SetCancel(c context.CancelFunc) {
	cancelMu.Lock()
	cancel = c
	cancelMu.Unlock()
}
