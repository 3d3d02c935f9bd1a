package executor

// State is the lifecycle of one execution as observed by the parent.
// Transitions only move forward
type State int

// States
const (
	StateCreated    State = iota // request accepted, stdio prepared
	StateIsolated                // child exists in its own session with stdio and root in place
	StateRestricted              // resource ceilings in force, filter about to load
	StateExecuting               // target program loaded under the filter
	StateTerminated              // leader terminated and reaped
)

var stateString = []string{
	"created",
	"isolated",
	"restricted",
	"executing",
	"terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateString) {
		return stateString[s]
	}
	return "invalid"
}
