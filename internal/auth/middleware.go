package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Middleware authenticates bearer tokens and enforces the role policy on
// every non-exempt route.
type Middleware struct {
	Secret []byte
	Policy Policy
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

// Wrap applies authentication and RBAC to the handler. The authenticated
// identity is attached to the request context for downstream store checks.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.authenticate(r)
		if err != nil {
			denyJSON(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !RoleAtLeast(identity.Role, required) {
			denyJSON(w, http.StatusForbidden, "forbidden")
			return
		}
		ctx := WithIdentity(r.Context(), identity.StaffID, identity.Role, identity.StoreID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) authenticate(r *http.Request) (Identity, error) {
	claims, err := ParseJWT(bearerToken(r), m.Secret)
	if err != nil {
		return Identity{}, err
	}
	role, ok := NormalizeRole(claims.Role)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return Identity{StaffID: claims.Subject, Role: role, StoreID: claims.StoreID}, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func denyJSON(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
