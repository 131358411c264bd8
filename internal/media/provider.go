// Package media defines the provider-agnostic real-time media contract.
//
// Rules:
//   - No provider SDK calls outside media adapters (see internal/media/pionrtc).
//   - Types here are the only vocabulary the call wrapper speaks; provider
//     callbacks are translated into EventHandler calls by the adapter.
package media

import (
	"context"
	"fmt"
)

// Kind is the media type of a track.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// ConnectionState is the signaling connection state reported by a provider client.
type ConnectionState string

const (
	StateDisconnected  ConnectionState = "DISCONNECTED"
	StateConnecting    ConnectionState = "CONNECTING"
	StateConnected     ConnectionState = "CONNECTED"
	StateReconnecting  ConnectionState = "RECONNECTING"
	StateDisconnecting ConnectionState = "DISCONNECTING"
)

// DeviceKind classifies an input device.
type DeviceKind string

const (
	DeviceCamera     DeviceKind = "videoinput"
	DeviceMicrophone DeviceKind = "audioinput"
)

// Device is one enumerated capture device.
type Device struct {
	ID    string     `json:"device_id"`
	Label string     `json:"label"`
	Kind  DeviceKind `json:"kind"`
}

// Provider is the real-time media provider: client construction, local
// capture and device enumeration.
type Provider interface {
	NewClient(cfg ClientConfig) (Client, error)

	EnumerateDevices(ctx context.Context) ([]Device, error)

	// CreateCameraTrack opens a camera. Empty deviceID selects the default device.
	CreateCameraTrack(ctx context.Context, deviceID string) (LocalTrack, error)
	// CreateMicrophoneTrack opens a microphone. Empty deviceID selects the default device.
	CreateMicrophoneTrack(ctx context.Context, deviceID string) (LocalTrack, error)
}

// ClientConfig is passed to Provider.NewClient.
type ClientConfig struct {
	AppID string
	// Mode is "rtc" (symmetric call) or "live"; Codec is "vp8" or "h264".
	Mode  string
	Codec string
}

// JoinParams identifies a join attempt.
type JoinParams struct {
	AppID   string
	Channel string
	// Token may be empty for projects that permit unauthenticated joins.
	Token string
	UID   int
}

// Client is one signaling/media connection to the provider.
type Client interface {
	// SetEventHandler must be called before Join; h receives provider callbacks,
	// possibly from provider goroutines.
	SetEventHandler(h EventHandler)

	Join(ctx context.Context, p JoinParams) (uid int, err error)
	Leave(ctx context.Context) error

	Publish(ctx context.Context, tracks ...LocalTrack) error
	Unpublish(ctx context.Context, tracks ...LocalTrack) error

	Subscribe(ctx context.Context, uid int, kind Kind) (RemoteTrack, error)
}

// Recorder is an optional Client capability for server-side recording.
type Recorder interface {
	StartRecording(ctx context.Context) (recordingID string, err error)
	StopRecording(ctx context.Context, recordingID string) error
}

// Track is the common surface of local and remote tracks.
type Track interface {
	Kind() Kind
}

// LocalTrack is a captured camera or microphone track owned by the caller.
type LocalTrack interface {
	Track
	Enabled() bool
	SetEnabled(enabled bool) error
	DeviceID() string
	// SetDevice swaps the capture device in place; a published track stays published.
	SetDevice(ctx context.Context, deviceID string) error
	// Close stops capture and releases the device.
	Close() error
}

// RemoteTrack is a subscribed track of a remote participant.
type RemoteTrack interface {
	Track
	UID() int
}

// EventHandler receives provider callbacks, already translated to media types.
type EventHandler interface {
	OnUserPublished(uid int, kind Kind)
	OnUserUnpublished(uid int, kind Kind)
	OnUserLeft(uid int, reason string)
	OnConnectionStateChange(current, previous ConnectionState, reason string)
}

// Error is a provider failure carrying a provider error code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode returns the provider code; used by token-expiry classification.
func (e *Error) ErrorCode() string { return e.Code }
