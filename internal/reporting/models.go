package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics. Empty
// AppointmentIDs covers every appointment in range.
type CallsSummaryRequest struct {
	AppointmentIDs []string  `json:"appointment_ids,omitempty"`
	Range          TimeRange `json:"range"`
}

type CallsSummary struct {
	TotalCalls     int `json:"total_calls"`
	ActiveCalls    int `json:"active_calls"`
	CompletedCalls int `json:"completed_calls"`

	TotalDurationSeconds   int64 `json:"total_duration_seconds"`
	AverageDurationSeconds int64 `json:"average_duration_seconds"`

	RecordedCalls int `json:"recorded_calls"`
}

// StarterBreakdownRequest groups calls in range by the user who started them.
type StarterBreakdownRequest struct {
	Range TimeRange `json:"range"`
}

type StarterStats struct {
	UserID               string `json:"user_id"`
	DisplayName          string `json:"display_name,omitempty"`
	Calls                int    `json:"calls"`
	TotalDurationSeconds int64  `json:"total_duration_seconds"`
}
