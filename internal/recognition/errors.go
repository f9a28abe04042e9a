package recognition

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported      = errors.New("recognition: unsupported capability")
	ErrPermissionDenied = errors.New("recognition: permission denied")
	ErrAborted          = errors.New("recognition: aborted")
	ErrNoSpeech         = errors.New("recognition: no speech detected")
	ErrClosed           = errors.New("recognition: engine closed")
	// ErrDisconnected reports that the platform lost the session's state.
	ErrDisconnected = errors.New("recognition: device disconnected")
)

// ErrorFromCode maps platform error codes (the Web Speech API names) to
// the sentinel errors.
func ErrorFromCode(code string) error {
	switch code {
	case "no-speech":
		return ErrNoSpeech
	case "aborted":
		return ErrAborted
	case "not-allowed", "service-not-allowed":
		return ErrPermissionDenied
	case "":
		return errors.New("recognition: unknown error")
	default:
		return fmt.Errorf("recognition: %s", code)
	}
}

// terminal errors end auto-restart of the global listener.
func terminal(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnsupported)
}

// benign errors are expected and not worth a warning.
func benign(err error) bool {
	return errors.Is(err, ErrNoSpeech) || errors.Is(err, ErrAborted)
}

func errKind(err error) string {
	switch {
	case errors.Is(err, ErrNoSpeech):
		return "no_speech"
	case errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrDisconnected):
		return "disconnected"
	default:
		return "other"
	}
}
