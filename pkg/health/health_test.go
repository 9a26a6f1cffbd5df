package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysOK(context.Context) error { return nil }

func alwaysFail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

// drive executes every registered probe n times, standing in for the ticker.
func drive(h *Health, n int) {
	for range n {
		for _, p := range h.probes {
			p.exec(context.Background())
		}
	}
}

func getStatus(t *testing.T, handler http.HandlerFunc, path string) (int, statusResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, alwaysOK)

	code, body := getStatus(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
}

func TestLiveEndpointFailsAfterThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("stuck", time.Second, alwaysFail("deadlock suspected"))

	// One failure is below the threshold; the probe stays up.
	drive(h, failureThreshold-1)
	code, _ := getStatus(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, code)

	drive(h, 1)
	code, body := getStatus(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "deadlock suspected", body.Checks["stuck"])
}

func TestReadyEndpointGatedOnSetReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, alwaysOK)

	code, body := getStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)
	code, _ = getStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusOK, code)

	h.SetReady(false)
	code, _ = getStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyEndpointReportsDownDependency(t *testing.T) {
	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("redis", time.Second, alwaysFail("connection refused"))

	drive(h, failureThreshold)
	code, body := getStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "connection refused", body.Checks["redis"])
	assert.False(t, h.IsReady())
}

func TestProbeRecovers(t *testing.T) {
	calls := 0
	flaky := func(context.Context) error {
		calls++
		if calls <= failureThreshold {
			return errors.New("warming up")
		}
		return nil
	}

	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("cache", time.Second, flaky)

	drive(h, failureThreshold)
	assert.False(t, h.IsReady())

	drive(h, successThreshold)
	assert.True(t, h.IsReady())
}

func TestStartAndStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("noop", time.Second, alwaysOK)

	h.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	h.Stop()
	h.Stop() // idempotent

	code, _ := getStatus(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, code)
}
