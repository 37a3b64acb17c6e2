package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareNoToken(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, DefaultPolicy())
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/points/summary", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareStaffForbiddenMutation(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, RoleStaff, 5)
	mw := NewMiddleware(secret, DefaultPolicy())
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestMiddlewareManagerForbiddenGradingLock(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, RoleManager, 5)
	mw := NewMiddleware(secret, DefaultPolicy())
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/grading/staff-1/2025-03/lock", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestMiddlewareAttachesIdentity(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, RoleManager, 7)
	mw := NewMiddleware(secret, DefaultPolicy())

	var got Identity
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got.StaffID != "staff-1" || got.Role != RoleManager || got.StoreID != 7 {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestMiddlewareExemptPaths(t *testing.T) {
	mw := NewMiddleware([]byte("test-secret"), DefaultPolicy())
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestCanAccessStore(t *testing.T) {
	cases := []struct {
		name    string
		role    Role
		storeID int
		target  int
		want    bool
	}{
		{"staff own store", RoleStaff, 5, 5, true},
		{"staff other store", RoleStaff, 5, 6, false},
		{"admin any store", RoleAdmin, 5, 6, true},
		{"unbound manager", RoleManager, 0, 9, true},
	}
	for _, tc := range cases {
		ctx := WithIdentity(context.Background(), "staff-1", tc.role, tc.storeID)
		if got := CanAccessStore(ctx, tc.target); got != tc.want {
			t.Fatalf("%s: CanAccessStore = %t, want %t", tc.name, got, tc.want)
		}
	}
}

func mustToken(t *testing.T, secret []byte, role Role, storeID int) string {
	t.Helper()
	token, err := SignJWT("staff-1", role, storeID, secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}
