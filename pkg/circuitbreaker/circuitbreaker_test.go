package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBackend = errors.New("backend unavailable")

func newTestBreaker(threshold int) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	cb := New(Config{FailureThreshold: threshold, OpenTimeout: time.Minute})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errBackend }), errBackend)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(2)

	_ = cb.Execute(func() error { return errBackend })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBackend })

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, now := newTestBreaker(1)
	var transitions []string
	cb.OnStateChange(func(from, to State) { transitions = append(transitions, from.String()+"->"+to.String()) })

	_ = cb.Execute(func() error { return errBackend })
	*now = now.Add(2 * time.Minute)

	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, now := newTestBreaker(1)

	_ = cb.Execute(func() error { return errBackend })
	*now = now.Add(2 * time.Minute)
	_ = cb.Execute(func() error { return errBackend })

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrOpen)
}

func TestCircuitBreaker_CountsFilter(t *testing.T) {
	clientErr := errors.New("bad request")
	cb := New(Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
		Counts:           func(err error) bool { return !errors.Is(err, clientErr) },
	})

	_ = cb.Execute(func() error { return clientErr })
	assert.Equal(t, StateClosed, cb.State())
}
