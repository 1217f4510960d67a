package breaker

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New(Config{FailureThreshold: 3})

	failing := func() (any, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, err := b.Execute(failing)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrOpen)
	}

	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Execute(func() (any, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_StaysClosedOnSuccess(t *testing.T) {
	b := New(Config{FailureThreshold: 2})

	for i := 0; i < 10; i++ {
		_, err := b.Execute(func() (any, error) { return "ok", nil })
		require.NoError(t, err)
	}

	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_ResetsConsecutiveFailuresOnSuccess(t *testing.T) {
	b := New(Config{FailureThreshold: 3})

	_, _ = b.Execute(func() (any, error) { return nil, errors.New("boom") })
	_, _ = b.Execute(func() (any, error) { return nil, errors.New("boom") })
	_, err := b.Execute(func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	_, _ = b.Execute(func() (any, error) { return nil, errors.New("boom") })
	_, _ = b.Execute(func() (any, error) { return nil, errors.New("boom") })

	assert.Equal(t, gobreaker.StateClosed, b.State())
}
