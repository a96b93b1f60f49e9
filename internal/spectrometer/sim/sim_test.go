package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpectrometer_RequiresOpen(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Spectrum(ctx)
	assert.ErrorIs(t, err, ErrNotOpen)

	assert.ErrorIs(t, s.Open(ctx, "nope"), ErrUnknownID)
	require.NoError(t, s.Open(ctx, "SIM00001"))

	n, err := s.PixelCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultPixels, n)

	require.NoError(t, s.Close(ctx))
	_, err = s.Wavelengths(ctx)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestSpectrometer_Deterministic(t *testing.T) {
	ctx := context.Background()

	read := func() []float64 {
		s := New(WithPixels(64), WithSeed(7))
		require.NoError(t, s.Open(ctx, "SIM00001"))
		v, err := s.Spectrum(ctx)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, read(), read())
}

func TestSpectrometer_DarkPixels(t *testing.T) {
	ctx := context.Background()
	s := New(WithPixels(200), WithNoise(0), WithDarkPixels(0, 1))
	require.NoError(t, s.Open(ctx, "SIM00001"))
	require.NoError(t, s.SetIntegrationTime(ctx, 100*time.Millisecond))

	v, err := s.Spectrum(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultDarkLevel, v[0])
	assert.Equal(t, DefaultDarkLevel, v[1])

	var peak float64
	for _, x := range v {
		peak = max(peak, x)
	}
	assert.Greater(t, peak, DefaultDarkLevel)
}

func TestSpectrometer_Wavelengths(t *testing.T) {
	ctx := context.Background()
	s := New(WithPixels(11))
	require.NoError(t, s.Open(ctx, "SIM00001"))

	wl, err := s.Wavelengths(ctx)
	require.NoError(t, err)
	require.Len(t, wl, 11)
	assert.Equal(t, DefaultStartNM, wl[0])
	assert.InDelta(t, DefaultEndNM, wl[10], 1e-9)
}

func TestSpectrometer_Failure(t *testing.T) {
	ctx := context.Background()
	s := New(WithPixels(8), WithSpectrumFailure(1))
	require.NoError(t, s.Open(ctx, "SIM00001"))

	_, err := s.Spectrum(ctx)
	require.NoError(t, err)
	_, err = s.Spectrum(ctx)
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 2, s.Calls("spectrum"))
}

func TestSpectrometer_DelayHonoursContext(t *testing.T) {
	s := New(WithPixels(8), WithDelay(time.Hour))
	require.NoError(t, s.Open(context.Background(), "SIM00001"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Spectrum(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSpectrometer_IntegrationRange(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Open(ctx, "SIM00001"))

	assert.Error(t, s.SetIntegrationTime(ctx, time.Microsecond))
	require.NoError(t, s.SetIntegrationTime(ctx, 250*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, s.IntegrationTime())
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, s.IntegrationHistory())
}
