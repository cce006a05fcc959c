package authctx

import (
	"context"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
)

type contextKey string

const userContextKey contextKey = "currentUser"

type CurrentUser struct {
	UserID   string
	TenantID string
	Email    string
	Role     domain.StaffRole
}

// Actor converts the signed-in user to the identity services act on behalf of.
func (u CurrentUser) Actor() domain.Actor {
	return domain.Actor{UserID: u.UserID, TenantID: u.TenantID, Email: u.Email, Role: u.Role}
}

func WithCurrentUser(ctx context.Context, user CurrentUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func FromContext(ctx context.Context) *CurrentUser {
	val, ok := ctx.Value(userContextKey).(CurrentUser)
	if !ok {
		return nil
	}
	return &val
}
