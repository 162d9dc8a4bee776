// Package sink provides the default segment consumer: timestamped files in
// an output directory.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"parla/recorder"
)

// Dir writes each segment as its own file, named by capture time and an
// in-process sequence number so simultaneous sessions never collide.
type Dir struct {
	path string
	seq  atomic.Uint64
}

func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

func (d *Dir) Path() string { return d.path }

// Consume implements recorder.Consumer.
func (d *Dir) Consume(_ context.Context, seg recorder.Segment) error {
	name := fmt.Sprintf("segment_%s_%04d.%s",
		time.Now().Format("20060102_150405"), d.seq.Add(1), ext(seg.Codec))
	path := filepath.Join(d.path, name)
	if err := os.WriteFile(path, seg.Bytes, 0644); err != nil {
		return fmt.Errorf("write segment %s: %w", path, err)
	}
	return nil
}

func ext(codec string) string {
	if codec == "" {
		return "bin"
	}
	return codec
}
