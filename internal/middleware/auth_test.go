package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testUserID = "123456789012345678"

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret", nil)

	token, err := m.IssueToken(testUserID, "buyer", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetUserIDFromContext(r.Context())
		if !ok {
			t.Fatalf("user id not in context")
		}
		if id != testUserID {
			t.Fatalf("user id from context = %s, want %s", id, testUserID)
		}
		if name := GetUserNameFromContext(r.Context()); name != "buyer" {
			t.Fatalf("user name from context = %q, want buyer", name)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret", nil)
	other := NewAuthMiddleware("other-secret", nil)

	foreign, err := other.IssueToken(testUserID, "", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	expired, err := m.IssueToken(testUserID, "", -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	noSubject, err := m.IssueToken("", "", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: testUserID},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "not bearer", header: "Basic dXNlcjpwYXNz"},
		{name: "garbage", header: "Bearer not-a-token"},
		{name: "foreign signature", header: "Bearer " + foreign},
		{name: "expired", header: "Bearer " + expired},
		{name: "no subject", header: "Bearer " + noSubject},
		{name: "alg none", header: "Bearer " + unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAuthMiddleware_RequireAdmin(t *testing.T) {
	m := NewAuthMiddleware("test-secret", []string{" 999 ", ""})

	if !m.IsAdmin("999") {
		t.Fatalf("999 should be admin")
	}
	if m.IsAdmin("") {
		t.Fatalf("empty id should not be admin")
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := m.RequireAdmin(ok)

	tests := []struct {
		name   string
		userID string
		want   int
	}{
		{name: "admin", userID: "999", want: http.StatusNoContent},
		{name: "regular user", userID: testUserID, want: http.StatusForbidden},
		{name: "anonymous", userID: "", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tt.userID != "" {
				r = r.WithContext(WithUser(r.Context(), tt.userID, ""))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
