//go:build !integration

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ai-playground/internal/domain"
	"ai-playground/internal/infra/logging"
)

func TestRequireSession(t *testing.T) {
	auth := NewAuthManager(testSecret, false, "", time.Minute)
	s := NewServer(&failingUC{err: domain.ErrNotFound}, auth, nil, 0, newTestLogger())
	h := s.Routes()

	mint := func(id string) string {
		tok, err := auth.Mint(httptest.NewRecorder(), id)
		if err != nil || tok == "" {
			t.Fatalf("failed to mint token: %v", err)
		}
		return tok
	}

	t.Run("no credentials -> 401", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("wrong scheme -> 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc", nil)
		req.Header.Set("Authorization", "Basic "+mint("abc"))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("token from another secret -> 401", func(t *testing.T) {
		other := NewAuthManager("some-other-secret", false, "", time.Minute)
		tok, _ := other.Mint(httptest.NewRecorder(), "abc")
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("token for another session -> 403", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: mint("xyz")})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
	})

	t.Run("own session reaches the use case", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc", nil)
		req.Header.Set("Authorization", "Bearer "+mint("abc"))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		// failingUC reports the session as missing
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})

	forge := func(claims jwt.RegisteredClaims) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tok
	}
	past := jwt.NewNumericDate(time.Now().Add(-time.Minute))
	future := jwt.NewNumericDate(time.Now().Add(time.Minute))
	for name, tok := range map[string]string{
		"expired":      forge(jwt.RegisteredClaims{Issuer: tokenIssuer, Subject: "abc", ExpiresAt: past}),
		"no expiry":    forge(jwt.RegisteredClaims{Issuer: tokenIssuer, Subject: "abc"}),
		"other issuer": forge(jwt.RegisteredClaims{Issuer: "someone-else", Subject: "abc", ExpiresAt: future}),
	} {
		t.Run(name+" -> 401", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc", nil)
			req.Header.Set("Authorization", "Bearer "+tok)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
		})
	}
}

func TestMintAndClearCookies(t *testing.T) {
	auth := NewAuthManager(testSecret, true, "", time.Hour)
	rr := httptest.NewRecorder()
	if _, err := auth.Mint(rr, "s1"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookie || !cookies[0].HttpOnly || !cookies[0].Secure {
		t.Fatalf("unexpected cookie %+v", cookies)
	}

	rr = httptest.NewRecorder()
	auth.Clear(rr)
	if c := rr.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Fatalf("clear must expire the cookie, got %+v", c)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{domain.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
		{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{domain.ErrSessionBusy, http.StatusConflict, "session_busy"},
		{domain.ErrUnavailable, http.StatusNotImplemented, "unavailable"},
		{domain.ErrCorruptState, http.StatusInternalServerError, "corrupt_state"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
	}
	auth := NewAuthManager(testSecret, false, "", time.Minute)
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			h := NewServer(&failingUC{err: tc.err}, auth, nil, 0, newTestLogger()).Routes()
			tok, _ := auth.Mint(httptest.NewRecorder(), "abc")
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc/files", nil)
			req.Header.Set("Authorization", "Bearer "+tok)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body struct{ Error, Message string }
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tc.code || body.Message == "" {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}

func TestMiddlewares(t *testing.T) {
	auth := NewAuthManager(testSecret, false, "", time.Minute)
	h := NewServer(&failingUC{}, auth, nil, 0, newTestLogger()).Routes()

	t.Run("panic -> 500", func(t *testing.T) {
		tok, _ := auth.Mint(httptest.NewRecorder(), "abc")
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc/messages", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
	})

	t.Run("request id is echoed or generated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "req-1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Header().Get("X-Request-ID") != "req-1" || rr.Body.String() != "OK" {
			t.Fatalf("unexpected response %d %q %q", rr.Code, rr.Header().Get("X-Request-ID"), rr.Body.String())
		}

		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rr.Header().Get("X-Request-ID") == "" {
			t.Fatal("expected a generated request id")
		}
	})

	t.Run("trace id reaches handlers", func(t *testing.T) {
		var seen string
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = logging.TraceID(r.Context())
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "req-2")
		Chain(inner, TraceID()).ServeHTTP(httptest.NewRecorder(), req)
		if seen != "req-2" {
			t.Fatalf("expected trace id req-2, got %q", seen)
		}
	})

	t.Run("timeout sets a deadline", func(t *testing.T) {
		var ok bool
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok = r.Context().Deadline()
		})
		Chain(inner, Timeout(time.Second)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if !ok {
			t.Fatal("expected a request deadline")
		}
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "playground_http_requests_total") {
			t.Errorf("request counter missing from exposition")
		}
	})
}
