package load

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keploy.io/testengine/pkg/models"
	"go.uber.org/zap/zaptest"
)

func TestExporter_Endpoints(t *testing.T) {
	lt := newTester(t, models.LoadTestConfig{Users: 2, Sustain: 40 * time.Millisecond}, Options{})
	srv := httptest.NewServer(NewExporter(zaptest.NewLogger(t), lt, "").Handler())
	t.Cleanup(srv.Close)

	report := func() models.LoadTestResults {
		resp, err := http.Get(srv.URL + "/report")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var res models.LoadTestResults
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		return res
	}
	assert.Equal(t, models.LoadIdle, report().State)

	_, err := lt.Run(context.Background(), func(context.Context, int) error {
		time.Sleep(time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	final := report()
	assert.Equal(t, models.LoadCompleted, final.State)
	assert.Positive(t, final.TotalRequests)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `testengine_load_requests_total{outcome="success"}`)
	assert.Contains(t, string(body), "testengine_load_request_duration_seconds_bucket")
	assert.Contains(t, string(body), `testengine_load_phase{phase="COMPLETED"} 1`)
	assert.Contains(t, string(body), "testengine_load_active_users 0")
}

func TestExporter_StartAndShutdown(t *testing.T) {
	lt := newTester(t, models.LoadTestConfig{Users: 1}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	addr, err := NewExporter(zaptest.NewLogger(t), lt, "127.0.0.1:0").Start(ctx)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/report")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.Eventually(t, func() bool {
		_, err := http.Get("http://" + addr + "/report")
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}
