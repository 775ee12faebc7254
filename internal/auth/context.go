package auth

import "context"

// Headers set by the Lambda entry point from the API Gateway authorizer.
const (
	HeaderGatewayAuthorized = "X-API-Gateway-Authorized"
	HeaderUserID            = "X-User-ID"
	HeaderUserName          = "X-User-Name"
)

// User is the authenticated caller.
type User struct {
	ID   string
	Name string
}

type contextKey struct{}

// WithUser adds user to context
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFromContext extracts the caller from context
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)
	return u, ok && u.ID != ""
}

// UserID returns the caller id, or "" when the request is anonymous.
func UserID(ctx context.Context) string {
	u, _ := UserFromContext(ctx)
	return u.ID
}
