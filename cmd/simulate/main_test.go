package main

import (
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/teleconsult-scheduling/internal/config"
)

func TestOperationMetrics(t *testing.T) {
	var om OperationMetrics
	for i := 1; i <= 20; i++ {
		om.Record(time.Duration(i)*time.Millisecond, i%2 == 0, i%5 == 0)
	}

	assert.EqualValues(t, 20, atomic.LoadInt64(&om.Total))
	assert.EqualValues(t, 10, atomic.LoadInt64(&om.Success))
	assert.EqualValues(t, 2, atomic.LoadInt64(&om.Conflict), "5 and 15 are odd multiples of five")
	assert.EqualValues(t, 8, atomic.LoadInt64(&om.Error))

	avg, lo, hi, p50, p95 := om.Stats()
	assert.Equal(t, 10500*time.Microsecond, avg)
	assert.Equal(t, time.Millisecond, lo)
	assert.Equal(t, 20*time.Millisecond, hi)
	assert.Equal(t, 11*time.Millisecond, p50)
	assert.Equal(t, 20*time.Millisecond, p95)
}

func TestLoadConfig_NormalizesRatios(t *testing.T) {
	t.Setenv("SIM_API_BASE_URL", "http://api.test/")
	t.Setenv("SIM_BOOKING_RATIO", "2")
	t.Setenv("SIM_CONFIRM_RATIO", "1")
	t.Setenv("SIM_READ_RATIO", "1")
	t.Setenv("SIM_WORKERS", "4")

	cfg := loadConfig(config.Config{ClinicTimezone: "America/Sao_Paulo"})

	assert.Equal(t, "http://api.test", cfg.APIBaseURL)
	assert.InDelta(t, 0.5, cfg.BookingRatio, 1e-9)
	assert.InDelta(t, 0.25, cfg.ConfirmRatio, 1e-9)
	assert.InDelta(t, 0.25, cfg.ReadRatio, 1e-9)
	assert.Equal(t, "America/Sao_Paulo", cfg.Timezone)
	require.NoError(t, validateConfig(cfg))

	cfg.Days = 0
	assert.Error(t, validateConfig(cfg))
}

func TestAvailabilityPath(t *testing.T) {
	id := uuid.New()
	path := availabilityPath(id, "2026-10-20")

	require.True(t, strings.HasPrefix(path, "/availability?"))
	q, err := url.ParseQuery(strings.TrimPrefix(path, "/availability?"))
	require.NoError(t, err)
	assert.Equal(t, id.String(), q.Get("practitionerId"))
	assert.Equal(t, "2026-10-20", q.Get("date"))
}
