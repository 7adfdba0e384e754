package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func protectedProbeHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func newJWKSStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"keys":[]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAdminAuthMiddleware_RejectsMissingAuthorizationHeader(t *testing.T) {
	jwks := newJWKSStub(t)
	var called bool
	handler := AdminAuthMiddleware(jwks.URL)(protectedProbeHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/payments", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
	if called {
		t.Fatal("protected handler must not run without a token")
	}
}

func TestAdminAuthMiddleware_RejectsNonBearerScheme(t *testing.T) {
	jwks := newJWKSStub(t)
	var called bool
	handler := AdminAuthMiddleware(jwks.URL)(protectedProbeHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/payments", nil)
	req.Header.Set("Authorization", "Token abc123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a non-bearer scheme, got %d", rec.Code)
	}
	if called {
		t.Fatal("protected handler must not run with a malformed header")
	}
}

func TestAdminAuthMiddleware_RejectsGarbageToken(t *testing.T) {
	jwks := newJWKSStub(t)
	var called bool
	handler := AdminAuthMiddleware(jwks.URL)(protectedProbeHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/payments", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for an unparseable token, got %d", rec.Code)
	}
	if called {
		t.Fatal("protected handler must not run with an invalid token")
	}
}

func TestGetAdminUserID_RoundTripsThroughContext(t *testing.T) {
	if _, ok := GetAdminUserID(context.Background()); ok {
		t.Fatal("expected no admin subject on a bare context")
	}

	ctx := context.WithValue(context.Background(), adminUserIDKey, "admin-42")
	sub, ok := GetAdminUserID(ctx)
	if !ok || sub != "admin-42" {
		t.Fatalf("expected admin-42 from context, got %q (ok=%t)", sub, ok)
	}
}
