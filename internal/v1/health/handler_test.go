package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incognita-games/lobbyd/internal/v1/bus"
)

func probe(t *testing.T, handle gin.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", path, nil)
	handle(c)
	return w
}

func TestLiveness(t *testing.T) {
	handler := NewHandler(nil, &mockDispatcher{running: true})

	w := probe(t, handler.Liveness, "/health/live")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
	assert.Contains(t, w.Body.String(), "uptime")
	assert.Contains(t, w.Body.String(), "timestamp")
}

// Liveness never consults dependencies; a stopped dispatcher is still an
// alive process.
func TestLiveness_AlwaysSucceeds(t *testing.T) {
	handler := NewHandler(nil, &mockDispatcher{running: false})

	w := probe(t, handler.Liveness, "/health/live")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}

func TestReadiness_Ready(t *testing.T) {
	handler := NewHandler(nil, &mockDispatcher{running: true})

	w := probe(t, handler.Readiness, "/health/ready")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
	assert.Contains(t, w.Body.String(), "dispatcher")
	assert.Contains(t, w.Body.String(), "redis")
}

func TestReadiness_DispatcherStopped(t *testing.T) {
	handler := NewHandler(nil, &mockDispatcher{running: false})

	w := probe(t, handler.Readiness, "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unavailable")
	assert.Contains(t, w.Body.String(), "unhealthy")
}

func TestReadiness_NilDispatcher(t *testing.T) {
	handler := NewHandler(nil, nil)

	w := probe(t, handler.Readiness, "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadiness_RedisHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	svc, err := bus.NewService(mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	handler := NewHandler(svc, &mockDispatcher{running: true})

	w := probe(t, handler.Readiness, "/health/ready")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"healthy"`)
}

func TestReadiness_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	svc, err := bus.NewService(mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	// Take Redis down after the connection was established.
	mr.Close()

	handler := NewHandler(svc, &mockDispatcher{running: true})

	w := probe(t, handler.Readiness, "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"unhealthy"`)
	assert.Contains(t, w.Body.String(), `"dispatcher":"healthy"`)
}

func TestReadiness_ResponseFormat(t *testing.T) {
	handler := NewHandler(nil, &mockDispatcher{running: true})

	w := probe(t, handler.Readiness, "/health/ready")

	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "status")
	assert.Contains(t, body, "checks")
	assert.Contains(t, body, "timestamp")
}
