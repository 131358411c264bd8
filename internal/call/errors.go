package call

import (
	"errors"
	"fmt"

	"eldercare-platform/internal/media"
	"eldercare-platform/internal/token"
)

var (
	ErrNotJoined            = errors.New("call: not joined")
	ErrNoLocalTracks        = errors.New("call: no local tracks to publish")
	ErrRecordingUnsupported = errors.New("call: provider does not support recording")
	ErrNotRecording         = errors.New("call: no recording in progress")
	ErrConnectionLost       = errors.New("call: connection lost")
)

// ConfigurationError is fatal misconfiguration (missing application identity).
type ConfigurationError = token.ConfigurationError

// InitializationError means the provider client could not be constructed.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string { return "call: initialize: " + e.Err.Error() }
func (e *InitializationError) Unwrap() error { return e.Err }

// JoinError is a failed join. IsTokenError is set when the cause was
// classified as credential related; Retried reports whether the single
// fresh-token retry ran.
type JoinError struct {
	Channel      string
	UID          int
	IsTokenError bool
	Retried      bool
	Err          error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("call: join %q as %d: %v", e.Channel, e.UID, e.Err)
}
func (e *JoinError) Unwrap() error { return e.Err }

// NoMediaDeviceError means neither a camera nor a microphone could be opened.
// Channel membership, if any, is kept.
type NoMediaDeviceError struct {
	CameraErr     error
	MicrophoneErr error
}

func (e *NoMediaDeviceError) Error() string {
	return fmt.Sprintf("call: no media device available (camera: %v, microphone: %v)", errOrNone(e.CameraErr), errOrNone(e.MicrophoneErr))
}

// PublishError means local media could not be published; distinct from
// device absence.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string { return "call: publish: " + e.Err.Error() }
func (e *PublishError) Unwrap() error { return e.Err }

// NoTrackError is a device switch on a track that was never created.
type NoTrackError struct {
	Kind media.Kind
}

func (e *NoTrackError) Error() string { return fmt.Sprintf("call: no local %s track", e.Kind) }

// RecordingError wraps a failed start or stop of a recording.
type RecordingError struct {
	Op  string
	Err error
}

func (e *RecordingError) Error() string { return "call: recording " + e.Op + ": " + e.Err.Error() }
func (e *RecordingError) Unwrap() error { return e.Err }

// Category is the user-facing message family for an error.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryConnection     Category = "connection"
	CategoryDeviceAccess   Category = "device-access"
	CategoryCall           Category = "call"
)

// Categorize maps any wrapper error to the message family shown to users.
func Categorize(err error) Category {
	var (
		je *JoinError
		nm *NoMediaDeviceError
		nt *NoTrackError
	)
	switch {
	case errors.As(err, &je):
		if je.IsTokenError {
			return CategoryAuthentication
		}
		return CategoryConnection
	case errors.As(err, &nm), errors.As(err, &nt):
		return CategoryDeviceAccess
	case errors.Is(err, ErrConnectionLost):
		return CategoryConnection
	default:
		return CategoryCall
	}
}

func errOrNone(err error) string {
	if err == nil {
		return "none"
	}
	return err.Error()
}
