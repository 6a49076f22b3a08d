package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverallStatus(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("inspector", true, ErrorCheck("process listing", func(context.Context) error { return nil }))
	c.RegisterFunc("clipboard", false, FlagCheck("clipboard", func() bool { return false }))

	assert.Equal(t, StatusUnknown, c.OverallStatus(), "critical component not yet checked")

	results := c.Check(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusHealthy, results["inspector"].Status)
	assert.Equal(t, StatusDegraded, results["clipboard"].Status)
	assert.Equal(t, StatusDegraded, c.OverallStatus())

	c.RegisterFunc("ipc", true, ErrorCheck("control socket", func(context.Context) error {
		return errors.New("not listening")
	}))
	c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, c.OverallStatus())
}

func TestCheckRecoversAndTimesOut(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("panics", false, func(context.Context) CheckResult { panic("boom") })
	c.Register(&Component{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(5 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})

	results := c.Check(context.Background())
	assert.Equal(t, "check panicked", results["panics"].Message)
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
}

func TestRoutes(t *testing.T) {
	c := NewChecker()
	r := mux.NewRouter()
	c.Routes(r)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)

	c.SetReady(true)
	rec := get("/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get("/health?full=true")
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Ready)
	assert.Equal(t, StatusHealthy, body.Status)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
