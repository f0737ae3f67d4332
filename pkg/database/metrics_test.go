package database

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSnapshot(s PoolSnapshot) func() PoolSnapshot {
	return func() PoolSnapshot { return s }
}

func TestPoolCollector_ExportsSnapshot(t *testing.T) {
	c := NewPoolCollector("backend-admin", fixedSnapshot(PoolSnapshot{
		Acquired:      3,
		Idle:          2,
		Total:         5,
		Max:           10,
		Acquires:      42,
		EmptyAcquires: 4,
		AcquireWait:   1500 * time.Millisecond,
	}))

	expected := `
# HELP db_pool_acquired_connections Connections currently held by requests
# TYPE db_pool_acquired_connections gauge
db_pool_acquired_connections{service="backend-admin"} 3
# HELP db_pool_empty_acquires_total Acquires that waited because the pool was exhausted
# TYPE db_pool_empty_acquires_total counter
db_pool_empty_acquires_total{service="backend-admin"} 4
# HELP db_pool_acquire_wait_seconds_total Time spent waiting for a connection
# TYPE db_pool_acquire_wait_seconds_total counter
db_pool_acquire_wait_seconds_total{service="backend-admin"} 1.5
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"db_pool_acquired_connections",
		"db_pool_empty_acquires_total",
		"db_pool_acquire_wait_seconds_total",
	)
	assert.NoError(t, err)
	assert.Equal(t, 8, testutil.CollectAndCount(c))
}

func TestPoolCollector_SnapshotTakenPerScrape(t *testing.T) {
	var calls int
	c := NewPoolCollector("backend-admin", func() PoolSnapshot {
		calls++
		return PoolSnapshot{Acquired: int32(calls)}
	})

	testutil.CollectAndCount(c)
	testutil.CollectAndCount(c)
	assert.Equal(t, 2, calls)
}

func TestRegisterPoolMetrics_Duplicate(t *testing.T) {
	reg := prometheus.NewRegistry()

	require.NoError(t, RegisterPoolMetrics(reg, nil, "backend-admin"))
	assert.Error(t, RegisterPoolMetrics(reg, nil, "backend-admin"))
}
