package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyIdentity  contextKey = "identity"
)

// Role is the caller's normalized role.
type Role string

const (
	RoleSystem   Role = "system"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Identity is the single normalized caller identity handed to the core.
type Identity struct {
	UserID string
	Role   Role
}

// SystemIdentity is used for work not started by a person (CLI, queue workers).
var SystemIdentity = Identity{UserID: "system", Role: RoleSystem}

// NewIdentity normalizes a user id and role; unknown roles become operator.
func NewIdentity(userID, role string) Identity {
	id := Identity{UserID: userID, Role: RoleOperator}
	switch Role(role) {
	case RoleSystem, RoleAdmin:
		id.Role = Role(role)
	}
	if id.UserID == "" {
		return SystemIdentity
	}
	return id
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithIdentity attaches the caller identity to the context
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

// IdentityFromContext returns the caller identity, or SystemIdentity when absent
func IdentityFromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(ContextKeyIdentity).(Identity); ok {
		return id
	}
	return SystemIdentity
}
