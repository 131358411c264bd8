package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the append-only persistence contract for audit events.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

var (
	ErrInvalidEvent = errors.New("audit: invalid event")
	ErrNoRepository = errors.New("audit: repository not configured")
)

// Service stamps and appends audit events. Callers treat it as best-effort;
// the Observer never lets a failure reach the session.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Append fills ID and CreatedAt when unset. Type is required.
func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return ErrNoRepository
	}
	if e.Type == "" {
		return fmt.Errorf("%w: type required", ErrInvalidEvent)
	}
	if e.UID < 0 {
		return fmt.Errorf("%w: negative uid", ErrInvalidEvent)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}
