package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResample(t *testing.T) {
	ramp := func(n int) []int16 {
		s := make([]int16, n)
		for i := range s {
			s[i] = int16(i * 10)
		}
		return s
	}

	tests := []struct {
		name     string
		in       []int16
		from, to int
		wantLen  int
	}{
		{"same rate", ramp(320), 16000, 16000, 320},
		{"48k to 16k", ramp(960), 48000, 16000, 320},
		{"16k to 48k", ramp(320), 16000, 48000, 960},
		{"24k to 48k", ramp(480), 24000, 48000, 960},
		{"empty", nil, 16000, 48000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Resample(tt.in, tt.from, tt.to), tt.wantLen)
		})
	}
}

func TestResamplePreservesShape(t *testing.T) {
	in := []int16{0, 100, 200, 300}
	out := Resample(in, 16000, 32000)
	require.Len(t, out, 8)
	assert.Equal(t, int16(0), out[0])
	assert.Equal(t, int16(50), out[1])
	assert.Equal(t, int16(100), out[2])
	assert.Equal(t, int16(300), out[7])
}

func TestBytesSamplesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	assert.Equal(t, samples, BytesToSamples(SamplesToBytes(samples)))

	// trailing odd byte is ignored
	assert.Len(t, BytesToSamples([]byte{1, 0, 2}), 1)
}

func TestStereoToMono(t *testing.T) {
	assert.Equal(t, []int16{150, -50}, StereoToMono([]int16{100, 200, -100, 0}))
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.Zero(t, RMS([]int16{0, 0, 0}))
	assert.InDelta(t, 0.5, RMS([]int16{16384, -16384}), 1e-3)
}

func TestDurationMs(t *testing.T) {
	assert.Equal(t, 20, DurationMs(640, 16000))
	assert.Equal(t, 1000, DurationMs(48000, 24000))
	assert.Zero(t, DurationMs(100, 0))
}

func TestFramer(t *testing.T) {
	f := NewFramer(4)

	assert.Empty(t, f.Write([]int16{1, 2, 3}))
	assert.Equal(t, 3, f.Buffered())

	frames := f.Write([]int16{4, 5, 6, 7, 8, 9})
	require.Len(t, frames, 2)
	assert.Equal(t, []int16{1, 2, 3, 4}, frames[0])
	assert.Equal(t, []int16{5, 6, 7, 8}, frames[1])

	assert.Equal(t, []int16{9, 0, 0, 0}, f.Flush())
	assert.Nil(t, f.Flush())

	f.Write([]int16{1, 2})
	f.Reset()
	assert.Zero(t, f.Buffered())
}

func TestNewFramerDefaultSize(t *testing.T) {
	f := NewFramer(0)
	frames := f.Write(make([]int16, FrameSamples))
	require.Len(t, frames, 1)
	assert.Len(t, frames[0], 960)
}
