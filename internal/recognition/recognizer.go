// Package recognition owns the microphone. A long-lived continuous
// listener feeds finalized utterances to the command layer, and screens can
// borrow the device for a single phrase. All session state is mutated on one
// dispatch loop, so platform callbacks never race the listeners.
package recognition

// Options configure one recognition session.
type Options struct {
	Continuous     bool
	InterimResults bool
	Lang           string
}

// Recognizer is the platform speech-to-text capability.
//
// Open must not start listening. The emit function may be called from any
// goroutine, including synchronously from Start or Stop.
type Recognizer interface {
	Available() bool
	Open(opts Options, emit func(Event)) (Session, error)
}

// Session is reusable: it may be started again after it has ended.
// Stop is asynchronous; EventEnd confirms the teardown. A session that never
// confirms is replaced, and closed first when it implements io.Closer.
type Session interface {
	Start() error
	Stop() error
}

type EventKind int

const (
	EventStart EventKind = iota
	EventResult
	EventError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Result is one recognized segment. Alternatives are ordered by confidence.
type Result struct {
	Final        bool
	Alternatives []string
}

// Transcript returns the first alternative.
func (r Result) Transcript() string {
	if len(r.Alternatives) == 0 {
		return ""
	}
	return r.Alternatives[0]
}

// Event is a typed platform notification. For EventResult, Results holds
// the whole batch and ResultIndex the first entry that changed.
type Event struct {
	Kind        EventKind
	Results     []Result
	ResultIndex int
	Err         error
}
