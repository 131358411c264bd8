// Package consult ties one live consultation to its persisted record: it
// drives the call wrapper and mirrors each lifecycle step through the
// records synchronizer.
//
// Live media errors are returned to the caller. Persistence errors are
// logged and swallowed here so a store outage never interrupts the call.
package consult

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"eldercare-platform/internal/call"
	"eldercare-platform/internal/records"
)

var (
	ErrAlreadyStarted = errors.New("consult: consultation already started")
	ErrNotStarted     = errors.New("consult: no consultation in progress")
)

// Session is the live-call surface the orchestrator drives; *call.Client
// satisfies it.
type Session interface {
	JoinChannel(ctx context.Context, uid int, channel string) (int, error)
	LeaveChannel(ctx context.Context) error
	StartRecording(ctx context.Context) (string, error)
	StopRecording(ctx context.Context) error
	State() call.Snapshot
}

// Recorder is the persistence surface; *records.Synchronizer satisfies it.
type Recorder interface {
	StartCall(ctx context.Context, appointmentID string, data records.CallData) (string, error)
	EndCall(ctx context.Context, callID string, data records.EndData) error
	SaveRecording(ctx context.Context, callID string, data records.RecordingData) (string, error)
	UpdateRecording(ctx context.Context, recordingID string, status records.RecordingStatus, size int64, url string) error
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func WithClock(fn func() time.Time) Option { return func(o *Orchestrator) { o.clock = fn } }

// WithUID pins the uid used to join; the default lets the wrapper pick one.
func WithUID(uid int) Option { return func(o *Orchestrator) { o.uid = uid } }

type Orchestrator struct {
	session Session
	records Recorder
	log     *slog.Logger
	clock   func() time.Time
	uid     int

	mu            sync.Mutex
	appointmentID string
	callID        string
	recordingID   string
	recording     bool
}

func New(session Session, rec Recorder, opts ...Option) *Orchestrator {
	o := &Orchestrator{session: session, records: rec, clock: time.Now, uid: call.AnyUID}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	o.log = o.log.With("component", "consult")
	return o
}

// Result describes a started consultation. CallID is empty when the call
// record could not be written.
type Result struct {
	Channel string `json:"channel"`
	UID     int    `json:"uid"`
	CallID  string `json:"call_id,omitempty"`
}

// Start joins the appointment's channel and records the call. A media error
// after a successful join is returned alongside the result; the session
// stays joined and the call is still recorded.
func (o *Orchestrator) Start(ctx context.Context, appointmentID string) (Result, error) {
	o.mu.Lock()
	if o.appointmentID != "" {
		o.mu.Unlock()
		return Result{}, ErrAlreadyStarted
	}
	channel := call.ChannelForAppointment(appointmentID, o.clock())
	o.appointmentID = appointmentID
	o.mu.Unlock()

	uid, joinErr := o.session.JoinChannel(ctx, o.uid, channel)
	if !o.session.State().Joined {
		o.reset()
		return Result{}, joinErr
	}

	res := Result{Channel: channel, UID: uid}
	callID, err := o.records.StartCall(ctx, appointmentID, records.CallData{ChannelName: channel, ParticipantID: uid})
	if err != nil {
		o.log.Error("call record start failed, continuing call", "appointment_id", appointmentID, "channel", channel, "err", err)
	}
	// A partially failed StartCall can still hand back the inserted record id.
	if callID != "" {
		res.CallID = callID
		o.mu.Lock()
		o.callID = callID
		o.mu.Unlock()
	}
	return res, joinErr
}

// End stops any recording, leaves the channel and completes the call record.
// The leave error, if any, is returned after the record is updated.
func (o *Orchestrator) End(ctx context.Context) error {
	o.mu.Lock()
	if o.appointmentID == "" {
		o.mu.Unlock()
		return ErrNotStarted
	}
	recording := o.recording
	o.mu.Unlock()

	if recording {
		if _, err := o.ToggleRecording(ctx); err != nil {
			o.log.Warn("stop recording on end failed", "err", err)
		}
	}

	leaveErr := o.session.LeaveChannel(ctx)

	o.mu.Lock()
	callID := o.callID
	o.mu.Unlock()
	if callID != "" {
		if err := o.records.EndCall(ctx, callID, records.EndData{}); err != nil {
			o.log.Error("call record end failed", "call_id", callID, "err", err)
		}
	}
	o.reset()
	return leaveErr
}

// ToggleRecording starts recording when idle and stops it otherwise,
// returning whether recording is now on.
func (o *Orchestrator) ToggleRecording(ctx context.Context) (bool, error) {
	o.mu.Lock()
	started, recording, callID, recID := o.appointmentID != "", o.recording, o.callID, o.recordingID
	o.mu.Unlock()
	if !started {
		return false, ErrNotStarted
	}

	if !recording {
		providerID, err := o.session.StartRecording(ctx)
		if err != nil {
			return false, err
		}
		o.mu.Lock()
		o.recording = true
		o.mu.Unlock()
		if callID == "" {
			return true, nil
		}
		id, err := o.records.SaveRecording(ctx, callID, records.RecordingData{ProviderID: providerID})
		if err != nil {
			o.log.Error("recording record save failed", "call_id", callID, "err", err)
		}
		if id != "" {
			o.mu.Lock()
			o.recordingID = id
			o.mu.Unlock()
		}
		return true, nil
	}

	if err := o.session.StopRecording(ctx); err != nil {
		return true, err
	}
	o.mu.Lock()
	o.recording = false
	o.recordingID = ""
	o.mu.Unlock()
	if recID != "" {
		if err := o.records.UpdateRecording(ctx, recID, records.RecordingCompleted, 0, ""); err != nil {
			o.log.Error("recording record update failed", "recording_id", recID, "err", err)
		}
	}
	return false, nil
}

// CallID is the current call record id, empty when none was written.
func (o *Orchestrator) CallID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.callID
}

func (o *Orchestrator) reset() {
	o.mu.Lock()
	o.appointmentID, o.callID, o.recordingID = "", "", ""
	o.recording = false
	o.mu.Unlock()
}
