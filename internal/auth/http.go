// ABOUTME: HTTP middleware for client token and admin key authentication
// ABOUTME: Extracts bearer credentials and adds the caller's AuthContext to the request

package auth

import (
	"net/http"
	"strings"
)

// AdminKeyHeader is the legacy header carrying the admin key
const AdminKeyHeader = "X-Api-Key"

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(authHeader[len(prefix):])
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// writeUnauthorized sends the generic 401 body
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}

// HTTPMiddleware authenticates client requests with gate and stores the
// resulting AuthContext in the request context.
func HTTPMiddleware(gate *Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if !gate.SelfHosted() {
				var errMsg string
				token, errMsg = extractBearerToken(r.Header.Get("Authorization"))
				if errMsg != "" {
					gate.reject(errMsg)
					writeUnauthorized(w)
					return
				}
			}

			authCtx, err := gate.Authenticate(r.Context(), token)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireAdminKey admits requests presenting the admin key either as a
// bearer token or in the X-Api-Key header.
func RequireAdminKey(admin *AdminGate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, _ := extractBearerToken(r.Header.Get("Authorization"))
			if presented == "" {
				presented = r.Header.Get(AdminKeyHeader)
			}
			if err := admin.Verify(presented); err != nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
