package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eldercare-platform/internal/docstore"
)

var ErrNotFound = errors.New("records: not found")

// Repository is the persistence contract for call records. Timestamps
// marked "server" are assigned by the store, not the caller.
type Repository interface {
	CreateAppointment(ctx context.Context, a Appointment) (string, error)
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	// SetAppointmentStatus moves status; a non-empty callID is attached too.
	SetAppointmentStatus(ctx context.Context, id string, status AppointmentStatus, callID string) error
	// ListAppointments returns appointments whose field equals value, soonest
	// first. Empty field lists every appointment.
	ListAppointments(ctx context.Context, field, value string) ([]Appointment, error)
	WatchAppointment(ctx context.Context, id string) (<-chan Appointment, error)

	// CreateCall inserts an active call with a server start time.
	CreateCall(ctx context.Context, c CallRecord) (string, error)
	GetCall(ctx context.Context, id string) (CallRecord, error)
	// CompleteCall marks the call completed with a server end time.
	CompleteCall(ctx context.Context, id string) error
	SetCallDuration(ctx context.Context, id string, seconds int64) error
	AttachRecording(ctx context.Context, callID, recordingID string) error
	// CallsByAppointment returns calls newest first.
	CallsByAppointment(ctx context.Context, appointmentID string) ([]CallRecord, error)
	ListCalls(ctx context.Context, f CallFilter) ([]CallRecord, error)

	// CreateRecording inserts a recording with a server start time.
	CreateRecording(ctx context.Context, r Recording) (string, error)
	// FinishRecording sets status, size and url, and a server end time when completed.
	FinishRecording(ctx context.Context, id string, status RecordingStatus, size int64, url string) error
	RecordingsByCall(ctx context.Context, callID string) ([]Recording, error)
}

// DocRepository implements Repository over a docstore.Store.
type DocRepository struct {
	store docstore.Store
	log   *slog.Logger
}

func NewDocRepository(store docstore.Store, log *slog.Logger) *DocRepository {
	if log == nil {
		log = slog.Default()
	}
	return &DocRepository{store: store, log: log}
}

func wrapNotFound(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

func decodeDoc[T any](d docstore.Document, setID func(*T, string)) (T, error) {
	var v T
	if err := d.Decode(&v); err != nil {
		return v, fmt.Errorf("records: decode %s: %w", d.ID, err)
	}
	setID(&v, d.ID)
	return v, nil
}

func decodeAll[T any](docs []docstore.Document, setID func(*T, string)) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := decodeDoc(d, setID)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func setAppointmentID(a *Appointment, id string) { a.ID = id }
func setCallID(c *CallRecord, id string)         { c.ID = id }
func setRecordingID(r *Recording, id string)     { r.ID = id }

/* ===================== APPOINTMENTS ===================== */

func (r *DocRepository) CreateAppointment(ctx context.Context, a Appointment) (string, error) {
	if a.Status == "" {
		a.Status = AppointmentScheduled
	}
	data := docstore.Data{
		"patientId":   a.PatientID,
		"caregiverId": a.CaregiverID,
		"doctorId":    a.DoctorID,
		"title":       a.Title,
		"status":      string(a.Status),
		"scheduledAt": a.ScheduledAt.UTC(),
		"createdAt":   docstore.ServerTimestamp,
	}
	return r.store.Create(ctx, CollectionAppointments, data)
}

func (r *DocRepository) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	d, err := r.store.Get(ctx, CollectionAppointments, id)
	if err != nil {
		return Appointment{}, wrapNotFound(err)
	}
	return decodeDoc(d, setAppointmentID)
}

func (r *DocRepository) SetAppointmentStatus(ctx context.Context, id string, status AppointmentStatus, callID string) error {
	fields := docstore.Data{"status": string(status), "updatedAt": docstore.ServerTimestamp}
	if callID != "" {
		fields["callId"] = callID
	}
	return wrapNotFound(r.store.Update(ctx, CollectionAppointments, id, fields))
}

func (r *DocRepository) ListAppointments(ctx context.Context, field, value string) ([]Appointment, error) {
	q := docstore.Query{}.Order("scheduledAt", false)
	if field != "" {
		q = q.Where(field, docstore.OpEq, value)
	}
	docs, err := r.store.Query(ctx, CollectionAppointments, q)
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, setAppointmentID)
}

// WatchAppointment streams the appointment on every change until ctx ends.
// A deleted appointment ends the stream.
func (r *DocRepository) WatchAppointment(ctx context.Context, id string) (<-chan Appointment, error) {
	src, err := r.store.Watch(ctx, CollectionAppointments, docstore.Query{})
	if err != nil {
		return nil, err
	}
	out := make(chan Appointment, 1)
	go func() {
		defer close(out)
		var last []byte
		for docs := range src {
			doc, ok := findDoc(docs, id)
			if !ok {
				if last != nil {
					return
				}
				continue
			}
			a, err := decodeDoc(doc, setAppointmentID)
			if err != nil {
				r.log.Warn("watch appointment decode failed", "appointment_id", id, "err", err)
				continue
			}
			// Writes to other appointments also wake the watcher; only forward real changes.
			fp := fingerprint(a)
			if last != nil && string(fp) == string(last) {
				continue
			}
			last = fp
			select {
			case out <- a:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func fingerprint(a Appointment) []byte {
	b, _ := json.Marshal(a)
	return b
}

func findDoc(docs []docstore.Document, id string) (docstore.Document, bool) {
	for _, d := range docs {
		if d.ID == id {
			return d, true
		}
	}
	return docstore.Document{}, false
}

/* ===================== CALLS ===================== */

func (r *DocRepository) CreateCall(ctx context.Context, c CallRecord) (string, error) {
	data := docstore.Data{
		"appointmentId": c.AppointmentID,
		"channelName":   c.ChannelName,
		"participantId": c.ParticipantID,
		"status":        string(CallActive),
		"startTime":     docstore.ServerTimestamp,
		"hasRecording":  false,
	}
	if c.StartedBy != "" {
		data["startedBy"] = c.StartedBy
		data["startedByName"] = c.StartedByName
	}
	return r.store.Create(ctx, CollectionCalls, data)
}

func (r *DocRepository) GetCall(ctx context.Context, id string) (CallRecord, error) {
	d, err := r.store.Get(ctx, CollectionCalls, id)
	if err != nil {
		return CallRecord{}, wrapNotFound(err)
	}
	return decodeDoc(d, setCallID)
}

func (r *DocRepository) CompleteCall(ctx context.Context, id string) error {
	return wrapNotFound(r.store.Update(ctx, CollectionCalls, id, docstore.Data{
		"status":  string(CallCompleted),
		"endTime": docstore.ServerTimestamp,
	}))
}

func (r *DocRepository) SetCallDuration(ctx context.Context, id string, seconds int64) error {
	return wrapNotFound(r.store.Update(ctx, CollectionCalls, id, docstore.Data{"durationSeconds": seconds}))
}

func (r *DocRepository) AttachRecording(ctx context.Context, callID, recordingID string) error {
	return wrapNotFound(r.store.Update(ctx, CollectionCalls, callID, docstore.Data{
		"recordingId":  recordingID,
		"hasRecording": true,
	}))
}

func (r *DocRepository) CallsByAppointment(ctx context.Context, appointmentID string) ([]CallRecord, error) {
	docs, err := r.store.Query(ctx, CollectionCalls, docstore.Query{}.
		Where("appointmentId", docstore.OpEq, appointmentID).
		Order("startTime", true))
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, setCallID)
}

func (r *DocRepository) ListCalls(ctx context.Context, f CallFilter) ([]CallRecord, error) {
	q := docstore.Query{}.Order("startTime", false)
	if !f.From.IsZero() {
		q = q.Where("startTime", docstore.OpGte, f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("startTime", docstore.OpLt, f.To.UTC())
	}
	docs, err := r.store.Query(ctx, CollectionCalls, q)
	if err != nil {
		return nil, err
	}
	calls, err := decodeAll(docs, setCallID)
	if err != nil || len(f.AppointmentIDs) == 0 {
		return calls, err
	}
	want := make(map[string]struct{}, len(f.AppointmentIDs))
	for _, id := range f.AppointmentIDs {
		want[id] = struct{}{}
	}
	out := calls[:0]
	for _, c := range calls {
		if _, ok := want[c.AppointmentID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

/* ===================== RECORDINGS ===================== */

func (r *DocRepository) CreateRecording(ctx context.Context, rec Recording) (string, error) {
	data := docstore.Data{
		"callId":    rec.CallID,
		"status":    string(RecordingInProgress),
		"startTime": docstore.ServerTimestamp,
	}
	if rec.ProviderID != "" {
		data["providerId"] = rec.ProviderID
	}
	return r.store.Create(ctx, CollectionRecordings, data)
}

func (r *DocRepository) FinishRecording(ctx context.Context, id string, status RecordingStatus, size int64, url string) error {
	fields := docstore.Data{"status": string(status)}
	if status == RecordingCompleted {
		fields["endTime"] = docstore.ServerTimestamp
	}
	if size > 0 {
		fields["size"] = size
	}
	if url != "" {
		fields["url"] = url
	}
	return wrapNotFound(r.store.Update(ctx, CollectionRecordings, id, fields))
}

func (r *DocRepository) RecordingsByCall(ctx context.Context, callID string) ([]Recording, error) {
	docs, err := r.store.Query(ctx, CollectionRecordings, docstore.Query{}.
		Where("callId", docstore.OpEq, callID).
		Order("startTime", false))
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, setRecordingID)
}

// elapsedSeconds is end-start rounded down, never negative.
func elapsedSeconds(start, end time.Time) int64 {
	if start.IsZero() || end.Before(start) {
		return 0
	}
	return int64(end.Sub(start) / time.Second)
}
