package payment

// Status is the normalized payment status every provider vocabulary maps onto.
type Status string

const (
	StatusPending        Status = "pending"
	StatusRequiresAction Status = "requires_action"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusExpired        Status = "expired"
	StatusRefunded       Status = "refunded"
)

// ParseStatus validates s against the normalized vocabulary.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusRequiresAction, StatusCompleted,
		StatusFailed, StatusExpired, StatusRefunded:
		return st, nil
	}
	return "", &ValidationError{Field: "status", Reason: "unknown status " + s}
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusRefunded:
		return true
	}
	return false
}

// Transition is the outcome of comparing a stored status with an incoming one.
type Transition int

const (
	// TransitionApply means the incoming status must be written.
	TransitionApply Transition = iota
	// TransitionSame means the incoming status equals the stored one.
	TransitionSame
	// TransitionStale means the incoming status must be dropped: the stored
	// status is terminal and Decide admits no move out of it.
	TransitionStale
)

func (t Transition) String() string {
	switch t {
	case TransitionApply:
		return "applied"
	case TransitionSame:
		return "duplicate"
	default:
		return "stale"
	}
}

// Decide returns how an incoming status relates to the current one.
// Non-terminal statuses may move freely between each other and into any
// terminal status. Out of a terminal status only completed -> refunded and
// a late completion of a failed or expired payment are admitted; a
// provider-confirmed settlement outranks a local failure verdict.
func Decide(current, incoming Status) Transition {
	if current == incoming {
		return TransitionSame
	}
	if !current.Terminal() {
		return TransitionApply
	}
	switch {
	case current == StatusCompleted && incoming == StatusRefunded:
		return TransitionApply
	case (current == StatusFailed || current == StatusExpired) && incoming == StatusCompleted:
		return TransitionApply
	}
	return TransitionStale
}
