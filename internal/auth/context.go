package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxDisplayName
	ctxRole
)

var ErrNoIdentity = errors.New("auth: identity not in context")

func WithIdentity(ctx context.Context, userID, displayName, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxDisplayName, displayName)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("user_id not in context")
}

// DisplayName is optional; it falls back to the user id.
func DisplayName(ctx context.Context) string {
	if s, ok := ctx.Value(ctxDisplayName).(string); ok && s != "" {
		return s
	}
	uid, _ := UserID(ctx)
	return uid
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}

// Identity is the authenticated caller.
type Identity struct {
	UserID      string
	DisplayName string
	Role        string
}

// FromContext returns the caller identity set by WithIdentity.
func FromContext(ctx context.Context) (Identity, error) {
	uid, err := UserID(ctx)
	if err != nil {
		return Identity{}, ErrNoIdentity
	}
	role, _ := Role(ctx)
	return Identity{UserID: uid, DisplayName: DisplayName(ctx), Role: role}, nil
}
