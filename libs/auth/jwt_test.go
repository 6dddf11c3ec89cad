package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := Claims{
		Sub:      "staff-1",
		ClinicID: "clinic-1",
		Role:     RoleReceptionist,
		Iat:      time.Now().Unix(),
		Exp:      time.Now().Add(1 * time.Hour).Unix(),
	}
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.ClinicID != claims.ClinicID || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "staff-1", Exp: time.Now().Add(-time.Minute).Unix()}, "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	if _, err := Issue(" ", RoleAdmin, time.Hour, "s"); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestRequireStaff(t *testing.T) {
	secret := "mw-secret"
	var seen *Claims
	h := RequireStaff(secret, RoleAdmin, RoleReceptionist)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		role   string
		header func(tok string) string
		want   int
	}{
		{name: "missing", header: func(string) string { return "" }, want: http.StatusUnauthorized},
		{name: "garbage", header: func(string) string { return "Bearer nope" }, want: http.StatusUnauthorized},
		{name: "wrong role", role: RoleDoctor, header: func(tok string) string { return "Bearer " + tok }, want: http.StatusForbidden},
		{name: "ok", role: RoleReceptionist, header: func(tok string) string { return "bearer " + tok }, want: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tok, err := Issue("staff-9", tc.role, time.Hour, secret)
			if err != nil {
				t.Fatalf("Issue failed: %v", err)
			}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if v := tc.header(tok); v != "" {
				req.Header.Set("Authorization", v)
			}
			rw := httptest.NewRecorder()
			h.ServeHTTP(rw, req)
			if rw.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rw.Code)
			}
		})
	}
	if seen == nil || seen.Sub != "staff-9" {
		t.Fatalf("expected claims in context, got %+v", seen)
	}
}
