package httpapi

import (
	"net/http"

	"eldercare-platform/internal/auth"
	"eldercare-platform/internal/rbac"
	"eldercare-platform/internal/records"

	"github.com/gin-gonic/gin"
)

type startCallRequest struct {
	AppointmentID string `json:"appointmentId"`
	ChannelName   string `json:"channelName"`
	ParticipantID int    `json:"participantId"`
}

type endCallRequest struct {
	DurationSeconds int64 `json:"durationSeconds"`
}

type saveRecordingRequest struct {
	ProviderID string `json:"providerId"`
}

type updateRecordingRequest struct {
	Status records.RecordingStatus `json:"status"`
	Size   int64                   `json:"size"`
	URL    string                  `json:"url"`
}

func (h Handlers) recordsReady(c *gin.Context) bool {
	if h.Records == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "records not configured"})
		return false
	}
	return true
}

// StartCall records the start of a consultation call.
// RBAC: doctor, caregiver or admin.
func (h Handlers) StartCall(c *gin.Context) {
	if !h.recordsReady(c) {
		return
	}
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !h.canAccessAppointment(c, req.AppointmentID) {
		return
	}
	callID, err := h.Records.StartCall(c.Request.Context(), req.AppointmentID, records.CallData{
		ChannelName:   req.ChannelName,
		ParticipantID: req.ParticipantID,
	})
	if err != nil {
		abortErr(c, err, "start call")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"callId": callID})
}

// EndCall completes a call and its appointment.
func (h Handlers) EndCall(c *gin.Context) {
	if !h.recordsReady(c) {
		return
	}
	var req endCallRequest
	// An empty body is allowed; the duration is derived from the record.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	if err := h.Records.EndCall(c.Request.Context(), c.Param("call_id"), records.EndData{DurationSeconds: req.DurationSeconds}); err != nil {
		abortErr(c, err, "end call")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) SaveRecording(c *gin.Context) {
	if !h.recordsReady(c) {
		return
	}
	var req saveRecordingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	recID, err := h.Records.SaveRecording(c.Request.Context(), c.Param("call_id"), records.RecordingData{ProviderID: req.ProviderID})
	if err != nil {
		abortErr(c, err, "save recording")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"recordingId": recID})
}

func (h Handlers) UpdateRecording(c *gin.Context) {
	if !h.recordsReady(c) {
		return
	}
	var req updateRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Records.UpdateRecording(c.Request.Context(), c.Param("recording_id"), req.Status, req.Size, req.URL); err != nil {
		abortErr(c, err, "update recording")
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAppointments lists the caller's appointments by role.
func (h Handlers) ListAppointments(c *gin.Context) {
	if !h.recordsReady(c) {
		return
	}
	id, err := auth.FromContext(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	appts, err := h.Records.GetAppointments(c.Request.Context(), id.UserID, id.Role)
	if err != nil {
		abortErr(c, err, "appointments")
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": appts})
}

// CallHistory lists an appointment's calls, newest first.
func (h Handlers) CallHistory(c *gin.Context) {
	if !h.recordsReady(c) {
		return
	}
	apptID := c.Param("appointment_id")
	if !h.canAccessAppointment(c, apptID) {
		return
	}
	calls, err := h.Records.GetCallHistory(c.Request.Context(), apptID)
	if err != nil {
		abortErr(c, err, "call history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls})
}

func (h Handlers) CallRecordings(c *gin.Context) {
	if !h.recordsReady(c) {
		return
	}
	call, err := h.Records.GetCall(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		abortErr(c, err, "call")
		return
	}
	if !h.canAccessAppointment(c, call.AppointmentID) {
		return
	}
	recs, err := h.Records.GetCallRecordings(c.Request.Context(), call.ID)
	if err != nil {
		abortErr(c, err, "recordings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": recs})
}

// canAccessAppointment allows admins and the appointment's participants.
// It aborts the request and returns false otherwise.
func (h Handlers) canAccessAppointment(c *gin.Context, appointmentID string) bool {
	id, err := auth.FromContext(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return false
	}
	if appointmentID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "appointment id required"})
		return false
	}
	appt, err := h.Records.GetAppointment(c.Request.Context(), appointmentID)
	if err != nil {
		abortErr(c, err, "appointment")
		return false
	}
	if rbac.IsAdmin(id.Role) {
		return true
	}
	switch id.UserID {
	case appt.PatientID, appt.CaregiverID, appt.DoctorID:
		return true
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	return false
}
