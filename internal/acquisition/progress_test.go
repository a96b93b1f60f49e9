package acquisition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgress_Estimate(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Progress{Total: 3, StartedAt: t0, IntegrationTime: 100 * time.Millisecond}

	// three integrations plus one period of padding
	assert.InDelta(t, 0.5, p.Estimate(t0.Add(200*time.Millisecond)), 1e-9)
	assert.InDelta(t, 0.25, p.Estimate(t0.Add(100*time.Millisecond)), 1e-9)
	assert.Equal(t, 1.0, p.Estimate(t0.Add(time.Minute)))
	assert.Equal(t, 0.0, p.Estimate(t0.Add(-time.Second)))

	assert.Equal(t, 0.0, Progress{Total: 3}.Estimate(t0))
}

func TestProgress_Fraction(t *testing.T) {
	assert.Equal(t, 0.0, Progress{}.Fraction())
	assert.InDelta(t, 2.0/3.0, Progress{Completed: 2, Total: 3}.Fraction(), 1e-12)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StatePreparing.Terminal())

	text, err := StateFailed.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "failed", string(text))
}
