package encoder

import (
	"encoding/binary"
	"testing"
)

func TestWavEncoderHeader(t *testing.T) {
	enc, err := NewWav()
	if err != nil {
		t.Fatalf("NewWav: %v", err)
	}

	samples := genSine(440, SampleRate/10) // 100ms
	if err := enc.EncodeBlock(samples); err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b := enc.Bytes()
	wantLen := wavHeaderSize + len(samples)*2
	if len(b) != wantLen {
		t.Fatalf("output length = %d, want %d", len(b), wantLen)
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(b[24:28]); got != SampleRate {
		t.Errorf("sample rate = %d, want %d", got, SampleRate)
	}
	if got := binary.LittleEndian.Uint32(b[40:44]); got != uint32(len(samples)*2) {
		t.Errorf("data size = %d, want %d", got, len(samples)*2)
	}
	if enc.TotalFrames() != uint64(len(samples)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(samples))
	}
}

func TestWavEncoderCloseIdempotent(t *testing.T) {
	enc, err := NewWav()
	if err != nil {
		t.Fatalf("NewWav: %v", err)
	}
	if err := enc.EncodeBlock(genSine(440, 160)); err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	first := append([]byte(nil), enc.Bytes()...)
	if err := enc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if string(first) != string(enc.Bytes()) {
		t.Error("second Close changed output")
	}
}
