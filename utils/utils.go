// Package utils holds helpers shared by every layer of the engine.
package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	sentry "github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

var Emoji = "\U0001F9EA" + " testengine:"

// Version is injected at build time.
var Version string

// LogFile is the path attached to sentry reports on panic.
var LogFile = "./testengine-logs.txt"

// ErrCode is the exit code main returns after a failed command.
var ErrCode = 0

// LogError logs err with msg. Context cancellation is how long running operations
// are told to stop, so it is only logged at debug level.
func LogError(logger *zap.Logger, err error, msg string, fields ...zap.Field) {
	if logger == nil {
		return
	}
	if err != nil && (errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "context canceled")) {
		logger.Debug(msg, append(fields, zap.Error(err))...)
		return
	}
	logger.Error(msg, append(fields, zap.Error(err))...)
}

func attachLogFileToSentry(logFilePath string) {
	content, err := os.ReadFile(logFilePath)
	if err != nil {
		return
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetExtra("logfile", string(content))
	})
	sentry.Flush(time.Second * 5)
}

// HandlePanic must be deferred. It reports the panic to sentry and prints the stack.
func HandlePanic() {
	if r := recover(); r != nil {
		attachLogFileToSentry(LogFile)
		sentry.CaptureException(errors.New(fmt.Sprint(r)))
		stackTrace := debug.Stack()

		fmt.Fprintln(os.Stderr, Emoji+" Recovered from:", r, "\nstack trace:\n", string(stackTrace))
		sentry.Flush(time.Second * 2)
		ErrCode = 1
	}
}

// Recover must be deferred in background goroutines. It logs and reports the
// panic without taking the process down.
func Recover(logger *zap.Logger) {
	if r := recover(); r != nil {
		sentry.CaptureException(errors.New(fmt.Sprint(r)))
		if logger != nil {
			logger.Error("recovered from panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}
}

// Suggest returns the candidate closest to input by edit distance, or "" when
// nothing is within maxDistance.
func Suggest(input string, candidates []string, maxDistance int) string {
	best := ""
	bestDist := maxDistance + 1
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	for _, c := range sorted {
		d := levenshtein.ComputeDistance(strings.ToLower(input), strings.ToLower(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
