//go:build integration

package test_test

import (
	"context"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"parla/audio"
	"parla/capture"
	"parla/recorder"
	"parla/settings"
	"parla/sink"
)

// writeWAV builds a 16kHz mono PCM file from the given sample sections.
func writeWAV(t *testing.T, path string, sections ...[]int16) {
	t.Helper()
	const headerSize = 44
	var samples []int16
	for _, s := range sections {
		samples = append(samples, s...)
	}
	dataSize := len(samples) * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], 16000)
	binary.LittleEndian.PutUint32(buf[28:32], 16000*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[headerSize+i*2:], uint16(s))
	}

	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
}

func noise(rng *rand.Rand, seconds float64) []int16 {
	s := make([]int16, int(seconds*16000))
	for i := range s {
		s[i] = int16(rng.Intn(40000) - 20000)
	}
	return s
}

func silence(seconds float64) []int16 {
	return make([]int16, int(seconds*16000))
}

func testStore() *settings.Store {
	return settings.NewStore(settings.Snapshot{
		SilenceThresholdDB:    -40,
		SilenceTimeoutMS:      300,
		SmoothingTimeConstant: 0,
	})
}

type countingSink struct {
	dir *sink.Dir

	mu   sync.Mutex
	segs []recorder.Segment
}

func (c *countingSink) consume(ctx context.Context, seg recorder.Segment) error {
	c.mu.Lock()
	c.segs = append(c.segs, seg)
	c.mu.Unlock()
	return c.dir.Consume(ctx, seg)
}

func (c *countingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.segs)
}

// runPipeline replays a WAV file through a live session at capture speed and
// returns the sink once all audio plus one silence timeout have elapsed.
func runPipeline(t *testing.T, wavPath string, store *settings.Store) *countingSink {
	t.Helper()

	fakeCtx, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		t.Fatal(err)
	}

	dir, err := sink.NewDir(filepath.Join(t.TempDir(), "segments"))
	if err != nil {
		t.Fatal(err)
	}
	cs := &countingSink{dir: dir}

	session := capture.NewSession(capture.Config{
		Context:  fakeCtx,
		Settings: store,
		Consumer: cs.consume,
	})
	if err := session.StartListening(); err != nil {
		t.Fatal(err)
	}
	defer session.FullStop()

	time.Sleep(fakeCtx.Duration() + store.Get().SilenceTimeout() + 500*time.Millisecond)
	session.StopListening()
	time.Sleep(200 * time.Millisecond)
	return cs
}

func TestPipelineSpeechProducesSegment(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	wav := filepath.Join(t.TempDir(), "speech.wav")
	writeWAV(t, wav, noise(rng, 1.5))

	cs := runPipeline(t, wav, testStore())
	if cs.count() != 1 {
		t.Fatalf("segments = %d, want 1", cs.count())
	}

	entries, err := os.ReadDir(cs.dir.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("segment files = %d, want 1", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "segment_") {
		t.Errorf("unexpected file name %q", name)
	}

	seg := cs.segs[0]
	// 1.5s of speech, allow for ramp-in before the gate opened.
	if seg.Duration() < time.Second {
		t.Errorf("segment duration = %v, want >= 1s", seg.Duration())
	}
}

func TestPipelineSilenceProducesNothing(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "silence.wav")
	writeWAV(t, wav, silence(1.5))

	cs := runPipeline(t, wav, testStore())
	if cs.count() != 0 {
		t.Fatalf("segments from silence = %d, want 0", cs.count())
	}
}

func TestPipelineSplitsOnPause(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	wav := filepath.Join(t.TempDir(), "two.wav")
	// Two utterances separated by a pause longer than the 300ms timeout.
	writeWAV(t, wav, noise(rng, 1.0), silence(0.8), noise(rng, 1.0))

	cs := runPipeline(t, wav, testStore())
	if cs.count() != 2 {
		t.Fatalf("segments = %d, want 2", cs.count())
	}
}

func TestPipelineShortBurstDropped(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	wav := filepath.Join(t.TempDir(), "burst.wav")
	// A 200ms click against the default-scale 1500ms timeout. The countdown
	// keeps the recorder appending for well over the half-second floor, but
	// only the voiced run counts, so the click is dropped regardless.
	writeWAV(t, wav, noise(rng, 0.2))

	store := settings.NewStore(settings.Snapshot{
		SilenceThresholdDB:    -40,
		SilenceTimeoutMS:      1500,
		SmoothingTimeConstant: 0,
	})
	cs := runPipeline(t, wav, store)
	if cs.count() != 0 {
		t.Fatalf("segments from short burst = %d, want 0", cs.count())
	}
}
