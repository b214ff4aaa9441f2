package health

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorUpdateAndGet(t *testing.T) {
	m := NewMonitor()

	m.UpdateHealthy("store", "reachable")
	status, ok := m.Get("store")
	require.True(t, ok)
	assert.Equal(t, "store", status.Component)
	assert.True(t, status.IsHealthy())
	assert.False(t, status.Timestamp.IsZero())

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestMonitorUpdateOverridesComponentName(t *testing.T) {
	m := NewMonitor()
	m.Update("store", NewHealthy("something-else", "ok"))

	status, ok := m.Get("store")
	require.True(t, ok)
	assert.Equal(t, "store", status.Component)
}

func TestAggregateRules(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, "healthy"},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, "healthy"},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, "degraded"},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, "unhealthy"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Aggregate("sys", test.subs)
			assert.Equal(t, test.want, got.Status)
			assert.Len(t, got.SubStatuses, len(test.subs))
		})
	}
}

func TestMonitorAggregateIsSorted(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("zeta", "")
	m.UpdateUnhealthy("alpha", "down")
	m.UpdateHealthy("mid", "")

	agg := m.AggregateHealth("sync-storage")
	assert.True(t, agg.IsUnhealthy())
	require.Len(t, agg.SubStatuses, 3)
	assert.Equal(t, "alpha", agg.SubStatuses[0].Component)
	assert.Equal(t, "mid", agg.SubStatuses[1].Component)
	assert.Equal(t, "zeta", agg.SubStatuses[2].Component)
}

func TestMonitorRemoveAndCount(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("a", "")
	m.UpdateHealthy("b", "")
	assert.Equal(t, 2, m.Count())

	m.Remove("a")
	assert.Equal(t, 1, m.Count())
	_, ok := m.Get("a")
	assert.False(t, ok)
}

func TestMonitorConcurrentAccess(t *testing.T) {
	m := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("component-%d", n%5)
			if n%2 == 0 {
				m.UpdateHealthy(name, "ok")
			} else {
				m.UpdateUnhealthy(name, "down")
			}
			m.AggregateHealth("sys")
			m.Get(name)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, m.Count())
}
