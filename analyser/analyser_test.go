package analyser

import (
	"math/rand"
	"testing"
)

func pushNoise(a *Analyser, rng *rand.Rand, n int) {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(rng.Intn(40000) - 20000)
	}
	a.Push(pcm)
}

func frame(a *Analyser) []byte {
	dst := make([]byte, BinCount)
	a.ByteFrequencyData(dst)
	return dst
}

func TestAnalyserSilenceIsFloor(t *testing.T) {
	a := New(0)
	a.Push(make([]int16, FFTSize))
	if db := Loudness(frame(a)); db != MinDB {
		t.Errorf("loudness of silence = %v, want %v", db, MinDB)
	}
}

func TestAnalyserEmptyRingIsFloor(t *testing.T) {
	a := New(0)
	// Fewer samples than one FFT frame: analysed as silence.
	a.Push(make([]int16, FFTSize/4))
	if db := Loudness(frame(a)); db != MinDB {
		t.Errorf("loudness before ring fills = %v, want %v", db, MinDB)
	}
}

func TestAnalyserNoiseAboveSilence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := New(0)
	pushNoise(a, rng, FFTSize)
	noisy := Loudness(frame(a))
	if noisy <= MinDB+20 {
		t.Fatalf("broadband noise loudness = %v, expected well above floor", noisy)
	}

	// Replace ring contents with silence: reading drops straight back with
	// smoothing disabled.
	a.Push(make([]int16, FFTSize))
	quiet := Loudness(frame(a))
	if quiet != MinDB {
		t.Errorf("loudness after silence = %v, want %v", quiet, MinDB)
	}
}

func TestAnalyserSmoothingDecays(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	a := New(0.8)
	pushNoise(a, rng, FFTSize)
	for i := 0; i < 5; i++ {
		frame(a) // let the average converge on the noise
	}
	loud := Loudness(frame(a))

	a.Push(make([]int16, FFTSize))
	first := Loudness(frame(a))
	if first <= MinDB {
		t.Fatalf("smoothed reading fell to floor in one frame, want gradual decay")
	}
	if first >= loud {
		t.Fatalf("smoothed reading did not decay: %v >= %v", first, loud)
	}

	prev := first
	for i := 0; i < 200; i++ {
		cur := Loudness(frame(a))
		if cur > prev+1e-9 {
			t.Fatalf("decay not monotonic at frame %d: %v > %v", i, cur, prev)
		}
		prev = cur
	}
	if prev > MinDB+5 {
		t.Errorf("smoothed reading still %v after 200 frames of silence", prev)
	}
}

func TestAnalyserSmoothingClamped(t *testing.T) {
	for _, tau := range []float64{-1, 0, 0.5, 1, 2} {
		a := New(tau)
		if a.smoothing < 0 || a.smoothing >= 1 {
			t.Errorf("smoothing %v clamped to %v, want [0,1)", tau, a.smoothing)
		}
	}
}
