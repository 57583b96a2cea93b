package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cinemaleshalles/rapla/internal/application"
)

type sessionValidatorStub struct {
	principal application.Principal
	err       error

	tokens []string
}

func (s *sessionValidatorStub) ValidateSession(ctx context.Context, token string) (application.Principal, error) {
	s.tokens = append(s.tokens, token)
	if s.err != nil {
		return application.Principal{}, s.err
	}
	return s.principal, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	t.Run("stores the principal for valid tokens", func(t *testing.T) {
		t.Parallel()

		validator := &sessionValidatorStub{principal: application.Principal{UserID: "user-1", IsAdmin: true}}
		var seen application.Principal
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = PrincipalFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/resources", nil)
		req.Header.Set("Authorization", "Bearer tok-123")
		recorder := httptest.NewRecorder()
		RequireSession(validator, testLogger())(next).ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
		if seen.UserID != "user-1" || !seen.IsAdmin {
			t.Fatalf("expected the validated principal in context, got %#v", seen)
		}
		if len(validator.tokens) != 1 || validator.tokens[0] != "tok-123" {
			t.Fatalf("expected the bearer token forwarded, got %v", validator.tokens)
		}
	})

	t.Run("accepts the session cookie", func(t *testing.T) {
		t.Parallel()

		validator := &sessionValidatorStub{principal: application.Principal{UserID: "user-1"}}
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/resources", nil)
		req.AddCookie(&http.Cookie{Name: "session_token", Value: "cookie-tok"})
		recorder := httptest.NewRecorder()
		RequireSession(validator, testLogger())(next).ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
		if len(validator.tokens) != 1 || validator.tokens[0] != "cookie-tok" {
			t.Fatalf("expected the cookie token forwarded, got %v", validator.tokens)
		}
	})

	t.Run("rejects missing tokens", func(t *testing.T) {
		t.Parallel()

		validator := &sessionValidatorStub{}
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("next handler must not run without a token")
		})

		req := httptest.NewRequest(http.MethodGet, "/resources", nil)
		recorder := httptest.NewRecorder()
		RequireSession(validator, testLogger())(next).ServeHTTP(recorder, req)

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", recorder.Code)
		}
		if len(validator.tokens) != 0 {
			t.Fatalf("expected no validation attempt, got %v", validator.tokens)
		}
	})

	t.Run("maps invalid sessions to 401", func(t *testing.T) {
		t.Parallel()

		for _, cause := range []error{
			application.ErrUnauthorized,
			application.ErrInvalidCredentials,
			application.ErrSessionExpired,
			application.ErrSessionRevoked,
		} {
			validator := &sessionValidatorStub{err: cause}
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("next handler must not run for an invalid session")
			})

			req := httptest.NewRequest(http.MethodGet, "/resources", nil)
			req.Header.Set("Authorization", "Bearer stale")
			recorder := httptest.NewRecorder()
			RequireSession(validator, testLogger())(next).ServeHTTP(recorder, req)

			if recorder.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401 for %v, got %d", cause, recorder.Code)
			}
			if !strings.Contains(recorder.Body.String(), "AUTH_INVALID_SESSION") {
				t.Fatalf("expected the session error code for %v, got %s", cause, recorder.Body.String())
			}
		}
	})

	t.Run("maps unexpected validation failures to 500", func(t *testing.T) {
		t.Parallel()

		validator := &sessionValidatorStub{err: errors.New("store down")}
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("next handler must not run when validation fails")
		})

		req := httptest.NewRequest(http.MethodGet, "/resources", nil)
		req.Header.Set("Authorization", "Bearer tok")
		recorder := httptest.NewRecorder()
		RequireSession(validator, testLogger())(next).ServeHTTP(recorder, req)

		if recorder.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", recorder.Code)
		}
	})

	t.Run("lets login through without a token", func(t *testing.T) {
		t.Parallel()

		validator := &sessionValidatorStub{}
		called := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusCreated)
		})

		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		recorder := httptest.NewRecorder()
		RequireSession(validator, testLogger())(next).ServeHTTP(recorder, req)

		if !called || recorder.Code != http.StatusCreated {
			t.Fatalf("expected the login handler to run, got status %d", recorder.Code)
		}
		if len(validator.tokens) != 0 {
			t.Fatalf("expected no validation for login, got %v", validator.tokens)
		}
	})
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	var ctxLogger *slog.Logger
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger = LoggerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/resources", nil)
	recorder := httptest.NewRecorder()
	RequestLogger(base)(next).ServeHTTP(recorder, req)

	if ctxLogger == nil {
		t.Fatal("expected a request-scoped logger in context")
	}
	out := buf.String()
	for _, want := range []string{"request started", "request completed", "method=GET", "path=/resources", "request_id=1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output, got %q", want, out)
		}
	}
}

func TestExtractTokenFromRequest(t *testing.T) {
	t.Parallel()

	if got := extractTokenFromRequest(nil); got != "" {
		t.Fatalf("expected empty token for nil request, got %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := extractTokenFromRequest(req); got != "" {
		t.Fatalf("expected empty token without credentials, got %q", got)
	}

	req.Header.Set("Authorization", "Basic abc")
	if got := extractTokenFromRequest(req); got != "" {
		t.Fatalf("expected non-bearer header ignored, got %q", got)
	}

	req.Header.Set("Authorization", "Bearer header-tok")
	if got := extractTokenFromRequest(req); got != "header-tok" {
		t.Fatalf("expected the bearer token, got %q", got)
	}

	// The header wins over the cookie when both are present.
	req.AddCookie(&http.Cookie{Name: "session_token", Value: "cookie-tok"})
	if got := extractTokenFromRequest(req); got != "header-tok" {
		t.Fatalf("expected the header token to win, got %q", got)
	}

	cookieOnly := httptest.NewRequest(http.MethodGet, "/", nil)
	cookieOnly.AddCookie(&http.Cookie{Name: "session_token", Value: "cookie-tok"})
	if got := extractTokenFromRequest(cookieOnly); got != "cookie-tok" {
		t.Fatalf("expected the cookie token, got %q", got)
	}
}
