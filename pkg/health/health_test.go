package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func TestChecker_Check(t *testing.T) {
	tests := []struct {
		name     string
		checks   map[string]CheckFunc
		critical map[string]bool
		expected Status
	}{
		{
			name:     "all healthy",
			checks:   map[string]CheckFunc{"database": ok, "redis": ok},
			critical: map[string]bool{"database": true, "redis": true},
			expected: StatusHealthy,
		},
		{
			name:     "non critical failure degrades",
			checks:   map[string]CheckFunc{"database": ok, "kafka": failing},
			critical: map[string]bool{"database": true},
			expected: StatusDegraded,
		},
		{
			name:     "critical failure",
			checks:   map[string]CheckFunc{"database": failing, "kafka": failing},
			critical: map[string]bool{"database": true},
			expected: StatusUnhealthy,
		},
		{
			name:     "no checks",
			checks:   map[string]CheckFunc{},
			expected: StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("test")
			for name, fn := range tt.checks {
				c.AddCheck(name, tt.critical[name], fn)
			}
			response := c.Check(context.Background())
			assert.Equal(t, tt.expected, response.Status)
			assert.Len(t, response.Checks, len(tt.checks))
		})
	}
}

func TestChecker_Routes(t *testing.T) {
	c := NewChecker("1.2.3")
	c.AddCheck("database", true, failing)
	e := echo.New()
	c.RegisterRoutes(e)

	serve := func(path string) (*httptest.ResponseRecorder, Response) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		var body Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec, body
	}

	rec, body := serve("/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.2.3", body.Version)

	rec, body = serve("/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, StatusUnhealthy, body.Checks["startup"].Status)

	c.SetReady(true)
	rec, body = serve("/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "connection refused", body.Checks["database"].Message)
}
