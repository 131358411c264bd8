package records

import "time"

// Collection names in the document store.
const (
	CollectionAppointments = "appointments"
	CollectionCalls        = "calls"
	CollectionRecordings   = "recordings"
)

// AppointmentStatus moves scheduled -> in-progress -> completed, driven by
// call start/end. Only the Synchronizer writes the in-progress and completed
// transitions.
type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentInProgress AppointmentStatus = "in-progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
)

// Appointment is owned by scheduling; this package only reads it and moves
// its status.
type Appointment struct {
	ID          string            `json:"id"`
	PatientID   string            `json:"patientId"`
	CaregiverID string            `json:"caregiverId,omitempty"`
	DoctorID    string            `json:"doctorId"`
	Title       string            `json:"title,omitempty"`
	Status      AppointmentStatus `json:"status"`
	ScheduledAt time.Time         `json:"scheduledAt"`
	CallID      string            `json:"callId,omitempty"`
}

type CallStatus string

const (
	CallActive    CallStatus = "active"
	CallCompleted CallStatus = "completed"
)

// CallRecord mirrors one live session. ChannelName and ParticipantID are
// denormalized copies of the session identifiers for post-hoc correlation.
type CallRecord struct {
	ID              string     `json:"id"`
	AppointmentID   string     `json:"appointmentId"`
	ChannelName     string     `json:"channelName"`
	ParticipantID   int        `json:"participantId"`
	Status          CallStatus `json:"status"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationSeconds int64      `json:"durationSeconds,omitempty"`
	StartedBy       string     `json:"startedBy,omitempty"`
	StartedByName   string     `json:"startedByName,omitempty"`
	RecordingID     string     `json:"recordingId,omitempty"`
	HasRecording    bool       `json:"hasRecording"`
}

type RecordingStatus string

const (
	RecordingInProgress RecordingStatus = "recording"
	RecordingCompleted  RecordingStatus = "completed"
)

// Recording is created lazily, only when recording is toggled on.
// ProviderID is the media provider's recording id, when there is one.
type Recording struct {
	ID         string          `json:"id"`
	CallID     string          `json:"callId"`
	Status     RecordingStatus `json:"status"`
	StartTime  time.Time       `json:"startTime"`
	EndTime    *time.Time      `json:"endTime,omitempty"`
	SizeBytes  int64           `json:"size,omitempty"`
	URL        string          `json:"url,omitempty"`
	ProviderID string          `json:"providerId,omitempty"`
}

// CallData is what the caller knows about the session when a call starts.
type CallData struct {
	ChannelName   string `json:"channelName"`
	ParticipantID int    `json:"participantId"`
}

// EndData is optional end-of-call information. Zero DurationSeconds means
// "derive from the stored start time".
type EndData struct {
	DurationSeconds int64 `json:"durationSeconds,omitempty"`
}

// RecordingData describes a recording being started.
type RecordingData struct {
	ProviderID string `json:"providerId,omitempty"`
}

// CallFilter narrows ListCalls. Empty fields do not filter.
type CallFilter struct {
	AppointmentIDs []string
	From           time.Time
	To             time.Time
}
