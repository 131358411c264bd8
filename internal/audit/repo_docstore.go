package audit

import (
	"context"

	"eldercare-platform/internal/docstore"
)

// DocRepo appends audit events to the document store.
type DocRepo struct {
	store docstore.Store
}

func NewDocRepo(store docstore.Store) *DocRepo { return &DocRepo{store: store} }

func (r *DocRepo) Append(ctx context.Context, e Event) error {
	data := docstore.Data{
		"auditId":   e.ID,
		"type":      e.Type,
		"createdAt": e.CreatedAt,
	}
	if e.Channel != "" {
		data["channel"] = e.Channel
		data["uid"] = e.UID
	}
	if e.ErrorType != "" {
		data["errorType"] = e.ErrorType
	}
	if e.Message != "" {
		data["message"] = e.Message
	}
	if e.Metadata != "" {
		data["metadata"] = e.Metadata
	}
	_, err := r.store.Create(ctx, Collection, data)
	return err
}
