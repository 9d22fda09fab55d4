package gate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPasswordAuth_ValidPassword(t *testing.T) {
	called := false
	handler := PasswordAuth("echoes2025")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/api/chat", nil)
	req.Header.Set(PasswordHeader, "echoes2025")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !called {
		t.Fatal("expected next handler to be called")
	}
}

func TestPasswordAuth_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"missing header", ""},
		{"wrong password", "letmein"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := PasswordAuth("echoes2025")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest("POST", "/api/chat", nil)
			if tt.password != "" {
				req.Header.Set(PasswordHeader, tt.password)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if called {
				t.Fatal("next handler must not run on auth failure")
			}

			var body map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body["isAuthError"] != true {
				t.Fatalf("expected isAuthError flag, got %v", body)
			}
		})
	}
}
