package encoder

import "errors"

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// ErrNoCodec is returned when no candidate codec can be initialized on this
// platform. There is no fallback past the candidate list.
var ErrNoCodec = errors.New("no supported codec among candidates")

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// Codec is one entry of the prioritized candidate list. Support is probed by
// construction: a candidate is supported iff New succeeds.
type Codec struct {
	Name     string
	MIMEType string
	New      func() (Encoder, error)
}

// Candidates returns the codec list in priority order.
func Candidates() []Codec {
	return []Codec{
		{Name: "flac", MIMEType: "audio/flac", New: func() (Encoder, error) { return NewFlac() }},
		{Name: "wav", MIMEType: "audio/wav", New: func() (Encoder, error) { return NewWav() }},
	}
}

// PickSupported returns the first candidate whose encoder initializes, along
// with the fresh encoder instance.
func PickSupported(candidates []Codec) (Codec, Encoder, error) {
	for _, c := range candidates {
		enc, err := c.New()
		if err == nil {
			return c, enc, nil
		}
	}
	return Codec{}, nil, ErrNoCodec
}
