package session

// State is the session's long-running-operation state. Outcomes of an
// operation are reported as notices; the state itself returns to Idle.
type State int

const (
	Idle State = iota
	Uploading
	Saving
	Submitting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Uploading:
		return "uploading"
	case Saving:
		return "saving"
	case Submitting:
		return "submitting"
	}
	return "unknown"
}
