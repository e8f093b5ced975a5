package orders

// transitions lists every allowed status change. Anything not listed is a conflict.
var transitions = map[Status][]Status{
	StatusDraft:               {StatusPendingScreenshot, StatusPendingConfirmation, StatusPendingPayout, StatusCancelled},
	StatusPendingScreenshot:   {StatusPendingConfirmation, StatusConfirmed, StatusRejected, StatusCancelled},
	StatusPendingConfirmation: {StatusConfirmed, StatusRejected, StatusCancelled},
	StatusPendingPayout:       {StatusConfirmed, StatusRejected, StatusCancelled},
}

func (s Status) Pending() bool {
	switch s {
	case StatusPendingScreenshot, StatusPendingConfirmation, StatusPendingPayout:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected || s == StatusCancelled
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// initialStatus is where a submitted order starts.
func initialStatus(t Type, requireScreenshot bool) Status {
	switch {
	case t == TypeRedeem:
		return StatusPendingPayout
	case t == TypeCreate && requireScreenshot:
		return StatusPendingScreenshot
	default:
		return StatusPendingConfirmation
	}
}
