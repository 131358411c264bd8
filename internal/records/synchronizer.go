// Package records is the call record synchronizer: the write operations
// callers invoke around the live call to mirror it into the document store,
// plus the read models the screens list.
//
// The synchronizer never touches live media state. Its writes are each
// independently fallible and are not rolled back against one another; a
// live session and its record are allowed to disagree.
package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"eldercare-platform/internal/auth"
	"eldercare-platform/internal/rbac"
)

var ErrInvalidArgument = errors.New("records: invalid argument")

type Synchronizer struct {
	repo Repository
	log  *slog.Logger
}

func NewSynchronizer(repo Repository, log *slog.Logger) *Synchronizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synchronizer{repo: repo, log: log.With("component", "records")}
}

// StartCall inserts an active call record, then moves the appointment to
// in-progress with the new call id attached. The authenticated caller in
// ctx, when present, is recorded as the starter.
func (s *Synchronizer) StartCall(ctx context.Context, appointmentID string, data CallData) (string, error) {
	if appointmentID == "" {
		return "", fmt.Errorf("%w: appointment id required", ErrInvalidArgument)
	}
	rec := CallRecord{
		AppointmentID: appointmentID,
		ChannelName:   data.ChannelName,
		ParticipantID: data.ParticipantID,
	}
	if id, err := auth.FromContext(ctx); err == nil {
		rec.StartedBy = id.UserID
		rec.StartedByName = id.DisplayName
	}

	callID, err := s.repo.CreateCall(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("records: create call: %w", err)
	}
	if err := s.repo.SetAppointmentStatus(ctx, appointmentID, AppointmentInProgress, callID); err != nil {
		return callID, fmt.Errorf("records: mark appointment in progress: %w", err)
	}
	s.log.Info("call started", "call_id", callID, "appointment_id", appointmentID, "channel", data.ChannelName)
	return callID, nil
}

// EndCall completes the call record, then reads it back to find and
// complete its appointment. A record missing on read-back skips the
// appointment step without error.
func (s *Synchronizer) EndCall(ctx context.Context, callID string, data EndData) error {
	if callID == "" {
		return fmt.Errorf("%w: call id required", ErrInvalidArgument)
	}
	if err := s.repo.CompleteCall(ctx, callID); err != nil {
		return fmt.Errorf("records: complete call: %w", err)
	}

	rec, err := s.repo.GetCall(ctx, callID)
	if errors.Is(err, ErrNotFound) {
		s.log.Warn("call record missing after update, appointment left as is", "call_id", callID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("records: read call: %w", err)
	}

	duration := data.DurationSeconds
	if duration <= 0 && rec.EndTime != nil {
		duration = elapsedSeconds(rec.StartTime, *rec.EndTime)
	}
	if duration > 0 {
		// Best effort; the call is already completed.
		if err := s.repo.SetCallDuration(ctx, callID, duration); err != nil {
			s.log.Warn("set call duration failed", "call_id", callID, "err", err)
		}
	}

	if rec.AppointmentID == "" {
		return nil
	}
	if err := s.repo.SetAppointmentStatus(ctx, rec.AppointmentID, AppointmentCompleted, ""); err != nil {
		return fmt.Errorf("records: mark appointment completed: %w", err)
	}
	s.log.Info("call ended", "call_id", callID, "appointment_id", rec.AppointmentID, "duration_seconds", duration)
	return nil
}

// SaveRecording inserts a recording record and flags the parent call.
func (s *Synchronizer) SaveRecording(ctx context.Context, callID string, data RecordingData) (string, error) {
	if callID == "" {
		return "", fmt.Errorf("%w: call id required", ErrInvalidArgument)
	}
	recID, err := s.repo.CreateRecording(ctx, Recording{CallID: callID, ProviderID: data.ProviderID})
	if err != nil {
		return "", fmt.Errorf("records: create recording: %w", err)
	}
	if err := s.repo.AttachRecording(ctx, callID, recID); err != nil {
		return recID, fmt.Errorf("records: attach recording: %w", err)
	}
	s.log.Info("recording saved", "call_id", callID, "recording_id", recID)
	return recID, nil
}

// UpdateRecording moves a recording to status with its final size and url.
func (s *Synchronizer) UpdateRecording(ctx context.Context, recordingID string, status RecordingStatus, size int64, url string) error {
	if recordingID == "" {
		return fmt.Errorf("%w: recording id required", ErrInvalidArgument)
	}
	switch status {
	case RecordingInProgress, RecordingCompleted:
	default:
		return fmt.Errorf("%w: recording status %q", ErrInvalidArgument, status)
	}
	if size < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidArgument)
	}
	if err := s.repo.FinishRecording(ctx, recordingID, status, size, url); err != nil {
		return fmt.Errorf("records: update recording: %w", err)
	}
	return nil
}

// GetAppointments lists the appointments visible to a user: their own as
// patient, caregiver or doctor; every appointment for admins.
func (s *Synchronizer) GetAppointments(ctx context.Context, userID, role string) ([]Appointment, error) {
	field := ""
	switch role {
	case rbac.RolePatient:
		field = "patientId"
	case rbac.RoleCaregiver:
		field = "caregiverId"
	case rbac.RoleDoctor:
		field = "doctorId"
	case rbac.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: role %q", ErrInvalidArgument, role)
	}
	if field != "" && userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidArgument)
	}
	return s.repo.ListAppointments(ctx, field, userID)
}

func (s *Synchronizer) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

// GetCallHistory lists an appointment's calls, newest first.
func (s *Synchronizer) GetCallHistory(ctx context.Context, appointmentID string) ([]CallRecord, error) {
	return s.repo.CallsByAppointment(ctx, appointmentID)
}

func (s *Synchronizer) GetCall(ctx context.Context, callID string) (CallRecord, error) {
	return s.repo.GetCall(ctx, callID)
}

func (s *Synchronizer) GetCallRecordings(ctx context.Context, callID string) ([]Recording, error) {
	return s.repo.RecordingsByCall(ctx, callID)
}

// WatchAppointment is a live query on one appointment.
func (s *Synchronizer) WatchAppointment(ctx context.Context, id string) (<-chan Appointment, error) {
	return s.repo.WatchAppointment(ctx, id)
}
