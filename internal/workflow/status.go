package workflow

// Status is the request state of a single workflow.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Settled reports whether s is a terminal outcome of a submission.
func (s Status) Settled() bool {
	return s == StatusSucceeded || s == StatusFailed
}
