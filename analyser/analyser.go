// Package analyser converts a raw PCM stream into smoothed byte frequency
// bins, mirroring a fixed-configuration FFT analyser stage: window, FFT,
// exponential moving average across frames, then dB-ranged byte scaling.
package analyser

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	FFTSize  = 2048
	BinCount = FFTSize / 2

	// Byte bin scaling range. Magnitudes at or below MinDB map to 0,
	// at or above MaxDB to 255.
	MinDB = -90.0
	MaxDB = -10.0
)

// Analyser holds the last FFTSize samples of the capture stream and the
// smoothed magnitude state. The smoothing time constant is fixed at
// construction; a changed setting takes effect on the next (re)build.
type Analyser struct {
	smoothing float64

	mu       sync.Mutex
	ring     []int16
	pos      int
	filled   int
	win      []float64
	smoothed []float64
}

// New builds an analyser with the given smoothing time constant, clamped to
// [0, 1). 0 disables smoothing entirely.
func New(smoothing float64) *Analyser {
	if smoothing < 0 {
		smoothing = 0
	}
	if smoothing >= 1 {
		smoothing = 0.99
	}
	return &Analyser{
		smoothing: smoothing,
		ring:      make([]int16, FFTSize),
		win:       window.Blackman(FFTSize),
		smoothed:  make([]float64, BinCount),
	}
}

// Push appends captured samples. Called from the audio device callback.
func (a *Analyser) Push(pcm []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range pcm {
		a.ring[a.pos] = s
		a.pos = (a.pos + 1) % FFTSize
	}
	a.filled += len(pcm)
	if a.filled > FFTSize {
		a.filled = FFTSize
	}
}

// ByteFrequencyData computes the current frequency frame into dst, which must
// hold BinCount bytes. Each call advances the moving average by one frame.
func (a *Analyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	input := make([]float64, FFTSize)
	if a.filled == FFTSize {
		for i := 0; i < FFTSize; i++ {
			s := a.ring[(a.pos+i)%FFTSize]
			input[i] = float64(s) / 32768.0 * a.win[i]
		}
	}
	// A partially filled ring analyses as silence: spectrum of the zero
	// input, which decays the smoothed state toward the floor.

	spectrum := fft.FFTReal(input)

	tau := a.smoothing
	for i := 0; i < BinCount; i++ {
		mag := cmplx.Abs(spectrum[i]) / FFTSize
		a.smoothed[i] = tau*a.smoothed[i] + (1-tau)*mag

		db := MinDB
		if a.smoothed[i] > 0 {
			db = 20 * math.Log10(a.smoothed[i])
		}
		scaled := (db - MinDB) / (MaxDB - MinDB) * 255
		if scaled < 0 {
			scaled = 0
		}
		if scaled > 255 {
			scaled = 255
		}
		dst[i] = byte(scaled)
	}
}
