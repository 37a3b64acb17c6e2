package auth

import "context"

type contextKey int

const (
	identityKey contextKey = iota
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	StaffID string
	Role    Role
	StoreID int
}

// WithIdentity attaches the caller identity to the context.
func WithIdentity(ctx context.Context, staffID string, role Role, storeID int) context.Context {
	return context.WithValue(ctx, identityKey, Identity{StaffID: staffID, Role: role, StoreID: storeID})
}

// IdentityFromContext returns the caller identity, zero when absent.
func IdentityFromContext(ctx context.Context) Identity {
	identity, _ := ctx.Value(identityKey).(Identity)
	return identity
}

// StaffIDFromContext returns the authenticated staff id, empty when absent.
func StaffIDFromContext(ctx context.Context) string {
	return IdentityFromContext(ctx).StaffID
}

// CanAccessStore reports whether the identity may touch the store. Admins
// and unbound identities span all stores.
func CanAccessStore(ctx context.Context, storeID int) bool {
	identity := IdentityFromContext(ctx)
	if identity.Role == RoleAdmin || identity.StoreID == 0 {
		return true
	}
	return identity.StoreID == storeID
}
