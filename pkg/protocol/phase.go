package protocol

// Phase is a round's lifecycle phase at a given instant.
type Phase string

const (
	PhaseCommit   Phase = "commit"
	PhaseReveal   Phase = "reveal"
	PhaseSettling Phase = "settling"
	PhaseSettled  Phase = "settled"
	PhaseExpired  Phase = "expired"
)

// Classify maps a round's window timestamps and flags to its phase at the
// given unix time. It is total over the five phases: settled and expired
// flags win, then time partitions into commit / reveal / settling with the
// window-close instant belonging to the later phase (now == commitCloseAt is
// reveal). Settling means the reveal window has closed and the oracle has
// not yet acted; callers must surface it as "awaiting oracle", since no
// local action can advance it.
func Classify(commitCloseAt, revealCloseAt int64, settled, expired bool, now int64) Phase {
	switch {
	case settled:
		return PhaseSettled
	case expired:
		return PhaseExpired
	case now < commitCloseAt:
		return PhaseCommit
	case now < revealCloseAt:
		return PhaseReveal
	default:
		return PhaseSettling
	}
}

// SecondsLeft returns the whole seconds from now until deadline, floored at
// zero.
func SecondsLeft(deadline, now int64) int64 {
	if now >= deadline {
		return 0
	}
	return deadline - now
}
