package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeStats struct {
	conns, sessions int
}

func (f *fakeStats) ConnectionCount() int { return f.conns }
func (f *fakeStats) TokenCount() int      { return f.sessions }

func probe(t *testing.T, fn gin.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", path, nil)
	fn(c)
	return w
}

func TestLiveness_AlwaysSucceeds(t *testing.T) {
	handler := NewHandler(&fakePinger{err: errors.New("db down")}, nil)

	w := probe(t, handler.Liveness, "/health/live")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
	assert.Contains(t, w.Body.String(), "timestamp")
}

func TestReadiness_HealthyDatabase(t *testing.T) {
	handler := NewHandler(&fakePinger{}, &fakeStats{conns: 3, sessions: 2})

	w := probe(t, handler.Readiness, "/health/ready")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"status":"ready"`)
	assert.Contains(t, body, `"database":"healthy"`)
	assert.Contains(t, body, `"connections":3`)
	assert.Contains(t, body, `"sessions":2`)
}

func TestReadiness_UnhealthyDatabase(t *testing.T) {
	handler := NewHandler(&fakePinger{err: errors.New("connection refused")}, nil)

	w := probe(t, handler.Readiness, "/health/ready")

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"status":"unavailable"`)
	assert.Contains(t, body, `"database":"unhealthy"`)
}

func TestReadiness_NoDependencies(t *testing.T) {
	handler := NewHandler(nil, nil)

	w := probe(t, handler.Readiness, "/health/ready")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ready"`)
}
