package bridge

// EventKind discriminates bridge events.
type EventKind int

const (
	// EventStatus reports a stage transition.
	EventStatus EventKind = iota
	// EventStdout carries one line of runner standard output.
	EventStdout
	// EventStderr carries one line of runner standard error.
	EventStderr
	// EventDone is the terminal event of a successful run.
	EventDone
	// EventError is the terminal event of a failed run.
	EventError
)

// Stage names the phases a run moves through, in order.
type Stage string

const (
	StagePreparing Stage = "preparing"
	StageFetching  Stage = "fetching"
	StageRunning   Stage = "running"
)

// Event is one observation of a run. Every run emits Preparing, Fetching and
// Running status events in that order, any number of output events, and
// exactly one of Done or Error last.
type Event struct {
	Kind  EventKind
	Stage Stage  // set for EventStatus
	Line  string // set for EventStdout and EventStderr
	Err   error  // set for EventError
}
