// Package capture runs the live session: it owns the microphone device, polls
// the loudness estimate on a short ticker, drives the speech gate, and turns
// gate transitions into recorder start/stop calls. Finished segments go to a
// consumer callback; consumer failures are logged and never stop the session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"parla/analyser"
	"parla/audio"
	"parla/encoder"
	"parla/gate"
	"parla/log"
	"parla/recorder"
	"parla/settings"
)

// TickInterval is the loudness polling period. Short against any plausible
// silence timeout, so the gate closes within one tick of the deadline.
const TickInterval = 20 * time.Millisecond

// MinSegmentFrames is the least voiced audio worth delivering. The floor is
// checked against frames captured up to the last reading at or above the
// threshold, not the segment total: the recorder keeps appending through the
// silence countdown, and that tail must not rescue a click or a breath.
const MinSegmentFrames = encoder.SampleRate / 2

var (
	// ErrDeviceAcquisition wraps failures to open the capture device.
	ErrDeviceAcquisition = errors.New("device acquisition failed")
	// ErrEncoderFault marks an encoding failure mid-recording. The whole
	// session is torn down; a half-written segment is never delivered.
	ErrEncoderFault = errors.New("encoder fault")
)

type Config struct {
	Context  audio.Context
	Device   *audio.DeviceInfo
	Settings *settings.Store
	Consumer recorder.Consumer
	// Codecs defaults to encoder.Candidates().
	Codecs []encoder.Codec
	// Tick defaults to TickInterval.
	Tick time.Duration
}

// Session is safe for concurrent use. IsListening, IsRecording and Level are
// cheap synchronous reads; the control methods serialize on an internal
// mutex.
type Session struct {
	cfg Config

	// ctl serializes the start/stop control paths end to end, including the
	// device calls made after mu is released.
	ctl sync.Mutex

	mu       sync.Mutex
	device   audio.CaptureDevice
	an       *analyser.Analyser
	gate     gate.Gate
	rec      recorder.Recorder
	segments int
	voiced   uint64 // frames encoded up to the last at-or-above-threshold reading
	faulted  bool

	loopStop chan struct{}
	loopDone chan struct{}

	listening atomic.Bool
	recording atomic.Bool
	level     atomic.Uint64 // math.Float64bits of the last dB reading

	errs chan error
}

func NewSession(cfg Config) *Session {
	if cfg.Codecs == nil {
		cfg.Codecs = encoder.Candidates()
	}
	if cfg.Tick == 0 {
		cfg.Tick = TickInterval
	}
	s := &Session{cfg: cfg, errs: make(chan error, 8)}
	s.level.Store(math.Float64bits(analyser.MinDB))
	return s
}

// Errors delivers asynchronous session failures (encoder faults). The
// channel is buffered; when full, further errors are logged and dropped.
func (s *Session) Errors() <-chan error { return s.errs }

func (s *Session) IsListening() bool { return s.listening.Load() }
func (s *Session) IsRecording() bool { return s.recording.Load() }

// Level returns the most recent loudness reading in dB.
func (s *Session) Level() float64 { return math.Float64frombits(s.level.Load()) }

// SegmentCount reports how many segments this session has delivered.
func (s *Session) SegmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segments
}

// Codec names the codec of the recording in progress, or "" when idle.
func (s *Session) Codec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rec.Active() {
		return ""
	}
	return s.rec.CodecName()
}

// StartListening opens the microphone (or resumes a suspended one) and arms
// the gate. Calling it on a session that is already listening is a no-op.
func (s *Session) StartListening() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listening.Load() {
		return nil
	}
	if s.faulted {
		return ErrEncoderFault
	}

	if s.device == nil {
		dev, err := s.cfg.Context.NewCapture(s.cfg.Device, audio.CaptureConfig{
			SampleRate: encoder.SampleRate,
			Channels:   encoder.Channels,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceAcquisition, err)
		}
		s.device = dev
	}

	// The analyser is rebuilt on every start so a smoothing change takes
	// effect here, not mid-stream.
	snap := s.cfg.Settings.Get()
	s.an = analyser.New(snap.SmoothingTimeConstant)

	s.device.SetCallback(s.onData)
	if err := s.device.Start(); err != nil {
		s.device.ClearCallback()
		return fmt.Errorf("%w: %v", ErrDeviceAcquisition, err)
	}

	s.gate.Arm()
	s.loopStop = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.listening.Store(true)
	go s.loop(s.loopStop, s.loopDone)

	log.Infof("listening started (threshold %.1f dB, timeout %v)",
		snap.SilenceThresholdDB, snap.SilenceTimeout())
	return nil
}

// StopListening suspends capture but keeps the device, so a later
// StartListening resumes without re-acquisition. An in-flight recording is
// finalized as if silence had timed out, and its segment delivered.
func (s *Session) StopListening() {
	s.stop(false)
}

// FullStop suspends capture and releases the device. The next StartListening
// acquires it again from scratch.
func (s *Session) FullStop() {
	s.stop(true)
}

func (s *Session) stop(release bool) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	if !s.listening.Load() {
		if release && s.device != nil {
			s.device.Close()
			s.device = nil
		}
		s.mu.Unlock()
		return
	}
	// Flipping the flag here makes a concurrent stop a no-op, so the loop
	// channel is closed exactly once.
	s.listening.Store(false)
	loopStop, loopDone := s.loopStop, s.loopDone
	s.mu.Unlock()

	close(loopStop)
	<-loopDone

	s.mu.Lock()
	if s.gate.ForceStop() == gate.ActionStopRecording {
		s.finalizeLocked()
	}
	s.gate.Disarm()
	s.recording.Store(false)
	s.level.Store(math.Float64bits(analyser.MinDB))

	dev := s.device
	if release {
		s.device = nil
		s.faulted = false
	}
	segments := s.segments
	s.mu.Unlock()

	if dev != nil {
		dev.ClearCallback()
		dev.Stop()
		if release {
			dev.Close()
		}
	}
	if release {
		log.SessionEnd(segments)
	} else {
		log.Info("listening suspended")
	}
}

// onData runs on the audio thread for every captured block.
func (s *Session) onData(data []byte, _ uint32) {
	samples := audio.BytesToSamples(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.an == nil {
		return
	}
	s.an.Push(samples)
	if s.rec.Active() {
		if err := s.rec.Append(samples, time.Now()); err != nil {
			// The recorder has already discarded the segment. The poll
			// loop notices the flag and tears the session down.
			s.faulted = true
			s.reportError(fmt.Errorf("%w: %v", ErrEncoderFault, err))
		}
	}
}

func (s *Session) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	bins := make([]byte, analyser.BinCount)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if s.tick(bins) {
			// Encoder fault: release everything from outside the loop.
			go s.FullStop()
			return
		}
	}
}

// tick runs one poll cycle and reports whether the session must tear down.
func (s *Session) tick(bins []byte) bool {
	snap := s.cfg.Settings.Get()
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.faulted {
		return true
	}

	s.an.ByteFrequencyData(bins)
	db := analyser.Loudness(bins)
	s.level.Store(math.Float64bits(db))

	params := gate.Params{
		ThresholdDB:    snap.SilenceThresholdDB,
		SilenceTimeout: snap.SilenceTimeout(),
	}
	switch s.gate.Evaluate(db, params, now) {
	case gate.ActionStartRecording:
		if err := s.rec.Start(s.cfg.Codecs, now); err != nil {
			s.gate.RevertStart()
			log.Errorf("recording not started: %v", err)
			s.reportError(err)
			break
		}
		s.voiced = 0
		s.recording.Store(true)
		log.Infof("recording started (%s, %.1f dB)", s.rec.CodecName(), db)

	case gate.ActionStopRecording:
		s.finalizeLocked()
	}

	if s.rec.Active() && db >= snap.SilenceThresholdDB {
		s.voiced = s.rec.Frames()
	}
	return false
}

// finalizeLocked drains the recorder and hands the segment to the consumer.
// Callers hold s.mu.
func (s *Session) finalizeLocked() {
	voiced := s.voiced
	chunks := s.rec.ChunkCount()
	seg, ok := s.rec.RequestStop()
	s.recording.Store(false)
	if !ok {
		return
	}

	if voiced < MinSegmentFrames {
		log.Infof("segment dropped as degenerate (%d voiced frames of %d captured, %.2fs)",
			voiced, seg.Frames, seg.Duration().Seconds())
		return
	}

	s.segments++
	audioS := seg.Duration().Seconds()
	sizeKB := float64(len(seg.Bytes)) / 1024
	log.Segment(log.SegmentMetrics{
		AudioLengthS: audioS,
		SizeKB:       sizeKB,
		Frames:       seg.Frames,
		Chunks:       chunks,
		Codec:        seg.Codec,
	})
	log.SegmentRecord(seg.Codec, audioS, sizeKB)

	if s.cfg.Consumer == nil {
		return
	}
	// The consumer runs off the poll loop; a slow or failing consumer
	// must not delay the next utterance.
	go func(seg recorder.Segment) {
		if err := s.cfg.Consumer(context.Background(), seg); err != nil {
			log.Errorf("segment consumer: %v", err)
		}
	}(seg)
}

func (s *Session) reportError(err error) {
	select {
	case s.errs <- err:
	default:
		log.Errorf("error channel full, dropped: %v", err)
	}
}
