package acquisition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/pn-raman/internal/driver"
)

func TestCall_NoTimeout(t *testing.T) {
	v, err := call(context.Background(), 0, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCall_DetachedFromCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	err := do(parent, time.Second, func(ctx context.Context) error {
		return ctx.Err()
	})
	assert.NoError(t, err)
}

func TestCall_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := call(context.Background(), 20*time.Millisecond, func(context.Context) (int, error) {
		<-release // ignores its context like a hung driver
		return 0, nil
	})
	assert.ErrorIs(t, err, driver.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCall_DeadlineFromCallee(t *testing.T) {
	err := do(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, driver.ErrTimeout)
}

func TestCall_Error(t *testing.T) {
	boom := errors.New("boom")
	err := do(context.Background(), time.Second, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}
