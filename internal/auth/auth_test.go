package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSessionRoundTrip(t *testing.T) {
	w := httptest.NewRecorder()
	CreateSession(w, 42)
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	uid, ok := ParseSession(req)
	if !ok || uid != 42 {
		t.Fatalf("parse session: uid=%d ok=%v", uid, ok)
	}
}

func TestParseSessionRejectsTamperedCookie(t *testing.T) {
	w := httptest.NewRecorder()
	CreateSession(w, 42)
	cookie := w.Result().Cookies()[0]
	cookie.Value = "43." + cookie.Value[len("42."):]

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	if _, ok := ParseSession(req); ok {
		t.Fatal("tampered cookie must not validate")
	}
}

func TestParseSessionNoCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := ParseSession(req); ok {
		t.Fatal("missing cookie must not validate")
	}
}

func TestRequireAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok || uid != 7 {
			t.Errorf("context uid=%d ok=%v", uid, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	protected := Middleware(RequireAuth(next))

	// No session: 401.
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", w.Code)
	}

	// Valid session: passes through with the uid in context.
	sessW := httptest.NewRecorder()
	CreateSession(sessW, 7)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sessW.Result().Cookies()[0])
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", w.Code)
	}
}
