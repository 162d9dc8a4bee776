package sink

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"parla/recorder"
)

func TestDirWritesSegments(t *testing.T) {
	tmp := t.TempDir()
	d, err := NewDir(filepath.Join(tmp, "out"))
	if err != nil {
		t.Fatal(err)
	}

	segs := []recorder.Segment{
		{Bytes: []byte("first"), Codec: "flac"},
		{Bytes: []byte("second"), Codec: "wav"},
	}
	for _, seg := range segs {
		if err := d.Consume(context.Background(), seg); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(d.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("files written = %d, want 2", len(entries))
	}

	var flacs, wavs int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".flac"):
			flacs++
		case strings.HasSuffix(e.Name(), ".wav"):
			wavs++
		}
	}
	if flacs != 1 || wavs != 1 {
		t.Errorf("extensions: %d flac, %d wav", flacs, wavs)
	}
}

func TestDirCreatesDirectory(t *testing.T) {
	tmp := t.TempDir()
	nested := filepath.Join(tmp, "a", "b", "segments")
	if _, err := NewDir(nested); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(nested); err != nil {
		t.Fatal(err)
	}
}
