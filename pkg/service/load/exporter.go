package load

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
)

// Exporter serves Prometheus metrics at /metrics and the JSON report at
// /report while a load test runs.
type Exporter struct {
	logger *zap.Logger
	tester *LoadTester
	addr   string
}

func NewExporter(logger *zap.Logger, tester *LoadTester, addr string) *Exporter {
	return &Exporter{logger: logger, tester: tester, addr: addr}
}

func (e *Exporter) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(e.tester.Metrics().Registry, promhttp.HandlerOpts{}))
	r.Get("/report", e.reportHandler)
	return r
}

func (e *Exporter) reportHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, e.tester.Report())
}

// Start listens on the configured address and shuts down when ctx ends. It
// returns the bound address, which matters when the port is 0.
func (e *Exporter) Start(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", e.addr)
	if err != nil {
		return "", err
	}
	server := &http.Server{
		Handler:           e.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		defer utils.Recover(e.logger)
		e.logger.Info("load exporter listening", zap.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("load exporter failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		// wait 5 seconds for the server to shutdown gracefully
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			e.logger.Error("failed to shut down load exporter", zap.Error(err))
		}
	}()
	return ln.Addr().String(), nil
}
