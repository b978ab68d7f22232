package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fixmyward/ward-service/internal/config"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/issues", "GET", 200, time.Millisecond)
	m.RecordRequest("/issues", "GET", 200, time.Millisecond)
	m.RecordError("/issues/:id", "PATCH", "FORBIDDEN")
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.RecordBroadcast(3, 1)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/issues|GET|200"])
	assert.Equal(t, int64(1), snap.Errors["/issues/:id|PATCH|FORBIDDEN"])
	assert.Equal(t, int64(1), snap.ActiveConnections)
	assert.Equal(t, int64(1), snap.Broadcasts)
	assert.Equal(t, int64(3), snap.Deliveries)
	assert.Equal(t, int64(1), snap.Drops)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordBroadcast(1, 0)
	m.ConnectionOpened()
	assert.Empty(t, m.Snapshot().Requests)
}

func TestRequestLoggerRecordsRoute(t *testing.T) {
	m := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), m))
	app.Get("/issues/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/issues/42", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int64(1), m.Snapshot().Requests["/issues/:id|GET|204"])
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "not-a-level"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}
