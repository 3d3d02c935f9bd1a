package runner

// TerminationKind is how the child process tree ended
type TerminationKind int

// Termination kinds observed by the executor
const (
	TerminationInvalid TerminationKind = iota // 0 not initialized
	TerminationExited
	TerminationSignaled
	TerminationKilledByWatchdog
	TerminationKilledByFilter
)

var terminationString = []string{
	"invalid",
	"exited",
	"signaled",
	"killedByWatchdog",
	"killedByFilter",
}

func (t TerminationKind) String() string {
	i := int(t)
	if i >= 0 && i < len(terminationString) {
		return terminationString[i]
	}
	return terminationString[0]
}

// KillReason tells why the monitor side killed the child
type KillReason int

// Kill reasons
const (
	KillNone KillReason = iota
	KillWallTime
	KillMemory
	KillOutput
	KillCanceled
)

var killReasonString = []string{
	"none",
	"wallTime",
	"memory",
	"output",
	"canceled",
}

func (r KillReason) String() string {
	i := int(r)
	if i >= 0 && i < len(killReasonString) {
		return killReasonString[i]
	}
	return killReasonString[0]
}
