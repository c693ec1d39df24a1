package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/worksuite/worksuite-api/internal/pkg/jwt"
	"github.com/worksuite/worksuite-api/internal/pkg/logger"
)

func TestRequestIDPropagatesOrMints(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestID(r.Context())
	}))

	given := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", given)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if seen != given || w.Header().Get("X-Request-ID") != given {
		t.Fatalf("expected %s to be propagated, got %s", given, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "not a uuid\nwith newline")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected a minted id, got %q", seen)
	}
}

func TestRecoverReturns500(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	jwtSvc := jwt.NewService("secret", time.Minute)
	admin, _ := jwtSvc.GenerateAccessToken(uuid.New(), jwt.RoleAdmin, nil)
	member, _ := jwtSvc.GenerateAccessToken(uuid.New(), "member", nil)

	h := Auth(jwtSvc)(RequireAdmin()(http.HandlerFunc(okHandler)))
	for token, status := range map[string]int{admin: http.StatusOK, member: http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != status {
			t.Fatalf("expected %d, got %d", status, w.Code)
		}
	}
}
