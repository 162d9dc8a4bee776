// Package recorder owns the bytestream capture for one utterance at a time:
// encode on append, chunk the encoder output at a fixed flush interval, and
// finalize everything into one immutable segment on stop.
package recorder

import (
	"context"
	"fmt"
	"time"

	"parla/encoder"
)

// FlushInterval is how often the encoder output is cut into a new chunk
// while a recording is active.
const FlushInterval = 500 * time.Millisecond

// Segment is one finished utterance. Bytes is an immutable copy; the
// recorder keeps no reference to it after hand-off.
type Segment struct {
	Bytes    []byte
	MIMEType string
	Codec    string
	Frames   uint64
}

// Duration is the captured audio length, derived from the frame count.
func (s Segment) Duration() time.Duration {
	return time.Duration(float64(s.Frames) / float64(encoder.SampleRate) * float64(time.Second))
}

// Consumer receives finished segments. It runs outside the polling tick; the
// gate may already be in a new cycle by the time it returns.
type Consumer func(ctx context.Context, seg Segment) error

// Recorder is reused across utterances. All state below belongs to the
// current cycle and is fully reset in RequestStop before the segment is
// handed out, so buffers from consecutive utterances never merge.
type Recorder struct {
	codec     encoder.Codec
	enc       encoder.Encoder
	chunks    [][]byte
	chunked   int // encoder bytes already cut into chunks
	lastFlush time.Time
	active    bool
}

// Start begins a new capture cycle with the first supported codec from the
// candidate list. Returns encoder.ErrNoCodec if none is; the caller must not
// remain in a recording state in that case.
func (r *Recorder) Start(candidates []encoder.Codec, now time.Time) error {
	if r.active {
		return fmt.Errorf("recorder already active")
	}
	codec, enc, err := encoder.PickSupported(candidates)
	if err != nil {
		return err
	}
	r.codec = codec
	r.enc = enc
	r.chunks = nil
	r.chunked = 0
	r.lastFlush = now
	r.active = true
	return nil
}

func (r *Recorder) Active() bool { return r.active }

// CodecName reports the codec chosen for the current cycle.
func (r *Recorder) CodecName() string { return r.codec.Name }

// Append encodes one block of captured samples. Blocks arriving before Start
// or after finalize are dropped, never mixed into a segment. An encoder
// error is fatal to the whole capture session, not just this segment.
func (r *Recorder) Append(block []int16, now time.Time) error {
	if !r.active {
		return nil
	}
	if err := r.enc.EncodeBlock(block); err != nil {
		r.reset()
		return fmt.Errorf("encoder fault: %w", err)
	}
	if now.Sub(r.lastFlush) >= FlushInterval {
		r.cutChunk()
		r.lastFlush = now
	}
	return nil
}

// cutChunk snapshots encoder output produced since the previous cut.
func (r *Recorder) cutChunk() {
	out := r.enc.Bytes()
	if len(out) > r.chunked {
		chunk := make([]byte, len(out)-r.chunked)
		copy(chunk, out[r.chunked:])
		r.chunks = append(r.chunks, chunk)
		r.chunked = len(out)
	}
}

// ChunkCount reports how many chunks the current cycle has cut so far.
func (r *Recorder) ChunkCount() int { return len(r.chunks) }

// Frames reports how many frames the current cycle has encoded so far, or 0
// when no recording is active.
func (r *Recorder) Frames() uint64 {
	if !r.active {
		return 0
	}
	return r.enc.TotalFrames()
}

// RequestStop drains the encoder and hands out the finished segment.
// Idempotent per cycle: a second call finds no active recording and reports
// ok=false, so a consumer callback can never be duplicated. Internal state is
// reset before returning.
//
// The segment bytes come from the encoder's full output, not the chunk
// copies: closing may patch bytes near the start of the stream (the wav
// header sizes) and the chunks would hold the stale version.
func (r *Recorder) RequestStop() (Segment, bool) {
	if !r.active {
		return Segment{}, false
	}

	codec := r.codec
	enc := r.enc
	if err := enc.Close(); err != nil {
		// A drain failure discards the segment; the session handles the
		// fault via the error returned from the last Append or teardown.
		r.reset()
		return Segment{}, false
	}
	r.cutChunk()

	out := enc.Bytes()
	buf := make([]byte, len(out))
	copy(buf, out)
	seg := Segment{
		Bytes:    buf,
		MIMEType: codec.MIMEType,
		Codec:    codec.Name,
		Frames:   enc.TotalFrames(),
	}
	r.reset()
	return seg, true
}

func (r *Recorder) reset() {
	r.codec = encoder.Codec{}
	r.enc = nil
	r.chunks = nil
	r.chunked = 0
	r.active = false
}
