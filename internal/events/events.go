package events

import (
	"time"

	"eldercare-platform/internal/media"
)

// Name is a session lifecycle event name. Keep these stable; UI observers
// and the audit trail key on them.
type Name string

const (
	Initialized           Name = "initialized"
	Joined                Name = "joined"
	Left                  Name = "left"
	TracksCreated         Name = "tracks-created"
	Published             Name = "published"
	VideoToggled          Name = "video-toggled"
	AudioToggled          Name = "audio-toggled"
	UserPublished         Name = "user-published"
	UserUnpublished       Name = "user-unpublished"
	UserLeft              Name = "user-left"
	ConnectionStateChange Name = "connection-state-change"
	CameraSwitched        Name = "camera-switched"
	MicrophoneSwitched    Name = "microphone-switched"
	RecordingStarted      Name = "recording-started"
	RecordingStopped      Name = "recording-stopped"
	Error                 Name = "error"
)

// ErrorType discriminates error events so observers can route messages.
type ErrorType string

const (
	ErrInitialization   ErrorType = "initialization"
	ErrJoin             ErrorType = "join"
	ErrTrackCreation    ErrorType = "track-creation"
	ErrPublish          ErrorType = "publish"
	ErrCameraSwitch     ErrorType = "camera-switch"
	ErrMicrophoneSwitch ErrorType = "microphone-switch"
	ErrRecordingStart   ErrorType = "recording-start"
	ErrRecordingStop    ErrorType = "recording-stop"
	ErrConnection       ErrorType = "connection"
)

// Event is one emitted bus event. Payload is one of the *Payload types below.
type Event struct {
	Name    Name
	Payload any
	At      time.Time
}

type InitializedPayload struct {
	AppID string `json:"app_id"`
}

type JoinedPayload struct {
	Channel string `json:"channel"`
	UID     int    `json:"uid"`
}

type LeftPayload struct {
	Channel string `json:"channel"`
	UID     int    `json:"uid"`
}

type TracksCreatedPayload struct {
	HasVideo bool `json:"has_video"`
	HasAudio bool `json:"has_audio"`
}

type PublishedPayload struct {
	VideoPublished bool `json:"video_published"`
	AudioPublished bool `json:"audio_published"`
}

type ToggledPayload struct {
	Enabled bool `json:"enabled"`
}

type UserMediaPayload struct {
	UID  int        `json:"uid"`
	Kind media.Kind `json:"kind"`
}

type UserLeftPayload struct {
	UID    int    `json:"uid"`
	Reason string `json:"reason,omitempty"`
}

type ConnectionStatePayload struct {
	Current  media.ConnectionState `json:"current"`
	Previous media.ConnectionState `json:"previous"`
	Reason   string                `json:"reason,omitempty"`
}

type DeviceSwitchedPayload struct {
	DeviceID string `json:"device_id"`
}

type RecordingPayload struct {
	RecordingID string `json:"recording_id"`
	Channel     string `json:"channel"`
}

// ErrorPayload carries the failure and its discriminator.
type ErrorPayload struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}
