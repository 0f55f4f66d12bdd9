// ABOUTME: Caller identity carried through request handlers
// ABOUTME: Provides WithCaller/FromContext for propagating auth info via context

package auth

import "context"

// Caller is the authenticated identity of a request.
type Caller struct {
	Subject string
}

type callerKey struct{}

// WithCaller returns a new context with the caller attached.
func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// FromContext returns the caller, or nil for unauthenticated requests.
func FromContext(ctx context.Context) *Caller {
	caller, _ := ctx.Value(callerKey{}).(*Caller)
	return caller
}
