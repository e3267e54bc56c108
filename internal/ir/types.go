package ir

import "fmt"

// SleepDepth selects how deep the system sleeps.
type SleepDepth int

const (
	// Standby gates clocks but keeps main memory accessible.
	Standby SleepDepth = iota

	// SelfRefresh additionally places DRAM in self-refresh, making the
	// memory bus unsafe until the resume-leg brings the controller back.
	SelfRefresh
)

// Depths lists every sleep depth in declaration order.
var Depths = []SleepDepth{Standby, SelfRefresh}

// String returns the snake_case name used in configuration and the journal.
func (d SleepDepth) String() string {
	switch d {
	case Standby:
		return "standby"
	case SelfRefresh:
		return "self_refresh"
	default:
		return fmt.Sprintf("depth(%d)", int(d))
	}
}

// ParseSleepDepth converts a configuration name to a SleepDepth.
// Accepts the snake_case names plus the "mem" alias used by board files.
func ParseSleepDepth(s string) (SleepDepth, error) {
	switch s {
	case "standby":
		return Standby, nil
	case "self_refresh", "selfrefresh", "mem":
		return SelfRefresh, nil
	default:
		return 0, fmt.Errorf("unknown sleep depth %q", s)
	}
}

// Leg selects one half of a Program.
type Leg int

const (
	// Suspend is the leg run before the hardware halt.
	Suspend Leg = iota
	// Resume is the leg run after the wake event releases the halt.
	Resume
)

// String returns the leg name.
func (l Leg) String() string {
	if l == Resume {
		return "resume"
	}
	return "suspend"
}

// WakeCause identifies what ended a halt: the raw hardware event read right
// after the halt returned, and the platform's logical translation of it.
type WakeCause struct {
	Raw     uint32 `json:"raw"`
	Logical uint32 `json:"logical"`
}
