// Package settings holds the tunables the detection loop reads on every
// tick. A Store keeps one immutable snapshot behind an atomic pointer, so
// updates from the UI or a config reload take effect between ticks without
// restarting the capture session.
package settings

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Snapshot is one consistent view of the tunables. Values are read together
// at tick time; a half-applied update is never observed.
type Snapshot struct {
	SilenceThresholdDB    float64 `yaml:"silence_threshold_db"`
	SilenceTimeoutMS      int     `yaml:"silence_timeout_ms"`
	SmoothingTimeConstant float64 `yaml:"smoothing_time_constant"`
}

// Default returns the out-of-the-box tunables.
func Default() Snapshot {
	return Snapshot{
		SilenceThresholdDB:    -45,
		SilenceTimeoutMS:      1500,
		SmoothingTimeConstant: 0.8,
	}
}

func (s Snapshot) SilenceTimeout() time.Duration {
	return time.Duration(s.SilenceTimeoutMS) * time.Millisecond
}

func (s Snapshot) Validate() error {
	if s.SilenceThresholdDB > 0 || s.SilenceThresholdDB < -90 {
		return fmt.Errorf("silence_threshold_db must be between -90 and 0, got %v", s.SilenceThresholdDB)
	}
	if s.SilenceTimeoutMS < 1 {
		return fmt.Errorf("silence_timeout_ms must be positive, got %d", s.SilenceTimeoutMS)
	}
	if s.SmoothingTimeConstant < 0 || s.SmoothingTimeConstant > 1 {
		return fmt.Errorf("smoothing_time_constant must be between 0 and 1, got %v", s.SmoothingTimeConstant)
	}
	return nil
}

// Store is safe for concurrent readers and writers.
type Store struct {
	cur atomic.Pointer[Snapshot]
}

func NewStore(s Snapshot) *Store {
	st := &Store{}
	st.Set(s)
	return st
}

func (st *Store) Get() Snapshot { return *st.cur.Load() }

func (st *Store) Set(s Snapshot) {
	snap := s
	st.cur.Store(&snap)
}

// LoadFile reads tunables from a yaml file. Fields absent from the file keep
// their defaults.
func LoadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read settings file %s: %w", path, err)
	}
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("settings file %s: %w", path, err)
	}
	return s, nil
}

// SaveFile writes the snapshot as yaml.
func SaveFile(path string, s Snapshot) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings file %s: %w", path, err)
	}
	return nil
}
