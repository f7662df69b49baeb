package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(testCodes ...string) *LabOrder {
	tests := make([]TestInfo, 0, len(testCodes))
	for _, code := range testCodes {
		tests = append(tests, TestInfo{TestCode: code})
	}
	return NewLabOrder("patient-1", "facility-1", "dr-1", PriorityRoutine, time.Time{}, tests, nil)
}

func TestNewLabOrder(t *testing.T) {
	order := newTestOrder("CBC", "BMP")

	assert.NotEqual(t, order.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, OrderStatusReceived, order.Status)
	assert.False(t, order.OrderTimestamp.IsZero())
	assert.Equal(t, order.CreatedAt, order.UpdatedAt)
	assert.Len(t, order.Tests, 2)
}

func TestAdvanceStatusFirstResult(t *testing.T) {
	order := newTestOrder("CBC", "BMP")

	changed := order.AdvanceStatus(1)

	assert.True(t, changed)
	assert.Equal(t, OrderStatusInProgress, order.Status)
}

func TestAdvanceStatusCompletion(t *testing.T) {
	order := newTestOrder("CBC", "BMP")
	order.AdvanceStatus(1)

	changed := order.AdvanceStatus(2)

	assert.True(t, changed)
	assert.Equal(t, OrderStatusCompleted, order.Status)
}

func TestAdvanceStatusOvercount(t *testing.T) {
	order := newTestOrder("CBC")

	changed := order.AdvanceStatus(3)

	assert.True(t, changed)
	assert.Equal(t, OrderStatusCompleted, order.Status)
}

func TestAdvanceStatusIdempotent(t *testing.T) {
	order := newTestOrder("CBC", "BMP")
	order.AdvanceStatus(1)
	stamp := order.UpdatedAt

	changed := order.AdvanceStatus(1)

	assert.False(t, changed)
	assert.Equal(t, OrderStatusInProgress, order.Status)
	assert.Equal(t, stamp, order.UpdatedAt, "no-op recomputation must not re-stamp the order")
}

func TestAdvanceStatusCompletedIdempotent(t *testing.T) {
	order := newTestOrder("CBC")
	order.AdvanceStatus(1)
	stamp := order.UpdatedAt

	changed := order.AdvanceStatus(1)

	assert.False(t, changed)
	assert.Equal(t, OrderStatusCompleted, order.Status)
	assert.Equal(t, stamp, order.UpdatedAt)
}

func TestAdvanceStatusZeroTests(t *testing.T) {
	order := newTestOrder()

	changed := order.AdvanceStatus(0)

	assert.False(t, changed)
	assert.Equal(t, OrderStatusReceived, order.Status, "an order with no requested tests never auto-completes")
}

func TestAdvanceStatusCancelledSink(t *testing.T) {
	order := newTestOrder("CBC")
	_, err := order.Cancel()
	require.NoError(t, err)

	changed := order.AdvanceStatus(5)

	assert.False(t, changed)
	assert.Equal(t, OrderStatusCancelled, order.Status)
}

func TestAcceptsResults(t *testing.T) {
	order := newTestOrder("CBC", "BMP")
	assert.True(t, order.AcceptsResults())

	order.AdvanceStatus(2)
	assert.True(t, order.AcceptsResults(), "completed orders still accept late results")

	order2 := newTestOrder("CBC")
	_, err := order2.Cancel()
	require.NoError(t, err)
	assert.False(t, order2.AcceptsResults())
}

func TestCancel(t *testing.T) {
	order := newTestOrder("CBC")

	cancelled, err := order.Cancel()
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, OrderStatusCancelled, order.Status)

	// Repeat cancel is a no-op, not an error.
	cancelled, err = order.Cancel()
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestCancelCompletedOrder(t *testing.T) {
	order := newTestOrder("CBC")
	order.AdvanceStatus(1)
	require.Equal(t, OrderStatusCompleted, order.Status)

	_, err := order.Cancel()

	assert.ErrorIs(t, err, ErrOrderCompleted)
	assert.Equal(t, OrderStatusCompleted, order.Status)
}

func TestParsePriority(t *testing.T) {
	for in, want := range map[string]Priority{
		"stat":    PriorityStat,
		"STAT":    PriorityStat,
		" Stat ":  PriorityStat,
		"urgent":  PriorityUrgent,
		"routine": PriorityRoutine,
	} {
		got, ok := ParsePriority(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	got, ok := ParsePriority("urgentish")
	assert.False(t, ok)
	assert.Equal(t, PriorityRoutine, got, "unknown priorities fall back to ROUTINE")
}
