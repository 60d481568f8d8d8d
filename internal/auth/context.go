// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext and store id binding for request bodies

package auth

import (
	"context"
)

// AuthContext holds the identity established by the gate for one request.
type AuthContext struct {
	StoreID    string // token subject; empty in self-hosted mode
	SelfHosted bool   // gate disabled; the request names its own store
}

// ResolveStoreID binds the store id named in a request body to the caller.
// When the body omits it the token subject is used; when it repeats it the
// two must match. In self-hosted mode the body's value is taken as is.
func (a *AuthContext) ResolveStoreID(requested string) (string, error) {
	if a.SelfHosted {
		return requested, nil
	}
	if requested == "" {
		return a.StoreID, nil
	}
	if requested != a.StoreID {
		return "", ErrUnauthorized
	}
	return requested, nil
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}
