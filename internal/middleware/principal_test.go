package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/helixbridge/genconsent/internal/auth"
	"github.com/helixbridge/genconsent/internal/roles"
)

func TestAuthenticate(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret")
	token, err := jwtService.GenerateToken("0xpat1", roles.Patient)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	var gotKey string
	var gotRole roles.Role
	handler := Authenticate(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = GetPrincipalKey(r.Context())
		gotRole = GetPrincipalRole(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/consents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotKey != "0xpat1" || gotRole != roles.Patient {
		t.Errorf("principal = (%q, %q), want (0xpat1, patient)", gotKey, gotRole)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret")
	handler := Authenticate(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without valid credentials")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/consents", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestAuthenticateRejectsWrongSecret(t *testing.T) {
	token, err := auth.NewJWTService("other-secret").GenerateToken("0xpat1", roles.Patient)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	handler := Authenticate(auth.NewJWTService("test-secret"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with a foreign token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/consents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireCapability(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret")
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Authenticate(jwtService)(RequireCapability(roles.CapDecideConsent)(inner))

	cases := []struct {
		role roles.Role
		want int
	}{
		{roles.Patient, http.StatusNoContent},
		{roles.Researcher, http.StatusForbidden},
		{roles.Lab, http.StatusForbidden},
	}
	for _, tc := range cases {
		token, err := jwtService.GenerateToken("0xkey", tc.role)
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/consents", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("role %s: status = %d, want %d", tc.role, rec.Code, tc.want)
		}
	}
}
