package reporting

import (
	"context"
	"errors"
	"sort"

	"eldercare-platform/internal/records"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting; records.DocRepository
// satisfies it.
type Repository interface {
	ListCalls(ctx context.Context, f records.CallFilter) ([]records.CallRecord, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func validRange(r TimeRange) bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if !validRange(req.Range) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, records.CallFilter{AppointmentIDs: req.AppointmentIDs, From: req.Range.From, To: req.Range.To})
	if err != nil {
		return CallsSummary{}, err
	}

	var out CallsSummary
	for _, c := range rows {
		out.TotalCalls++
		if c.HasRecording {
			out.RecordedCalls++
		}
		switch c.Status {
		case records.CallCompleted:
			out.CompletedCalls++
			out.TotalDurationSeconds += c.DurationSeconds
		case records.CallActive:
			out.ActiveCalls++
		}
	}
	// Active calls have no duration yet; average over completed ones only.
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / int64(out.CompletedCalls)
	}
	return out, nil
}

// StarterBreakdown counts calls per starting user, busiest first. Calls
// without a recorded starter are grouped under an empty user id.
func (s *Service) StarterBreakdown(ctx context.Context, req StarterBreakdownRequest) ([]StarterStats, error) {
	if !validRange(req.Range) {
		return nil, ErrInvalidRequest
	}
	if s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, records.CallFilter{From: req.Range.From, To: req.Range.To})
	if err != nil {
		return nil, err
	}

	byUser := map[string]*StarterStats{}
	for _, c := range rows {
		st, ok := byUser[c.StartedBy]
		if !ok {
			st = &StarterStats{UserID: c.StartedBy, DisplayName: c.StartedByName}
			byUser[c.StartedBy] = st
		}
		st.Calls++
		st.TotalDurationSeconds += c.DurationSeconds
	}

	out := make([]StarterStats, 0, len(byUser))
	for _, st := range byUser {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}
