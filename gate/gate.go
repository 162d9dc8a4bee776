// Package gate decides when speech starts and stops from a stream of
// loudness readings. Entering speech and leaving it are asymmetric: a reading
// at or above threshold opens immediately, while closing requires a
// continuous below-threshold run lasting the full silence timeout.
package gate

import "time"

type State int

const (
	StateIdle State = iota
	StateArmed
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	}
	return "unknown"
}

type Action int

const (
	ActionNone Action = iota
	ActionStartRecording
	ActionStopRecording
)

// Params is the settings snapshot read fresh on each evaluation tick.
type Params struct {
	ThresholdDB    float64
	SilenceTimeout time.Duration
}

// Gate holds the state machine. The silence deadline is an explicit field so
// every transition out of Recording clears it in the same step; there is no
// timer firing independently of Evaluate.
type Gate struct {
	state           State
	silenceDeadline time.Time
}

func (g *Gate) State() State { return g.state }

func (g *Gate) Recording() bool { return g.state == StateRecording }

// SilencePending reports whether a silence countdown is running.
func (g *Gate) SilencePending() bool { return !g.silenceDeadline.IsZero() }

// Arm moves an idle gate to Armed. No-op in any other state.
func (g *Gate) Arm() {
	if g.state == StateIdle {
		g.state = StateArmed
	}
}

// Disarm returns the gate to Idle. The caller is responsible for stopping an
// active recording first (see ForceStop).
func (g *Gate) Disarm() {
	g.state = StateIdle
	g.silenceDeadline = time.Time{}
}

// Evaluate feeds one loudness reading through the state machine and returns
// the side effect the caller must perform. A reading exactly at threshold
// counts as voice, so equal repeated samples at the boundary never start the
// silence countdown.
func (g *Gate) Evaluate(db float64, p Params, now time.Time) Action {
	switch g.state {
	case StateArmed:
		if db >= p.ThresholdDB {
			g.state = StateRecording
			g.silenceDeadline = time.Time{}
			return ActionStartRecording
		}

	case StateRecording:
		if db >= p.ThresholdDB {
			g.silenceDeadline = time.Time{}
			return ActionNone
		}
		if g.silenceDeadline.IsZero() {
			g.silenceDeadline = now.Add(p.SilenceTimeout)
			return ActionNone
		}
		if !now.Before(g.silenceDeadline) {
			g.state = StateArmed
			g.silenceDeadline = time.Time{}
			return ActionStopRecording
		}
	}
	return ActionNone
}

// RevertStart undoes the Armed->Recording transition when the recorder could
// not start (no supported codec). No recording happened, so no stop action.
func (g *Gate) RevertStart() {
	if g.state == StateRecording {
		g.state = StateArmed
		g.silenceDeadline = time.Time{}
	}
}

// ForceStop ends an active recording immediately, as a forced silence
// timeout. Returns ActionStopRecording if a recording was in progress.
func (g *Gate) ForceStop() Action {
	if g.state != StateRecording {
		return ActionNone
	}
	g.state = StateArmed
	g.silenceDeadline = time.Time{}
	return ActionStopRecording
}
