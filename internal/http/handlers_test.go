package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cinemaleshalles/rapla/internal/application"
	"github.com/cinemaleshalles/rapla/internal/binding"
	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

type authServiceStub struct {
	result application.AuthenticateResult
	err    error

	revokedTokens []string
	revokeErr     error
}

func (s *authServiceStub) Authenticate(ctx context.Context, params application.AuthenticateParams) (application.AuthenticateResult, error) {
	if s.err != nil {
		return application.AuthenticateResult{}, s.err
	}
	return s.result, nil
}

func (s *authServiceStub) RevokeSession(ctx context.Context, token string) error {
	if s.revokeErr != nil {
		return s.revokeErr
	}
	s.revokedTokens = append(s.revokedTokens, token)
	return nil
}

type syncServiceStub struct {
	resources []entity.Entity
	timestamp time.Time
	result    application.UpdateResult
	ids       []string
	err       error

	storeParams *application.StoreParams
	since       *time.Time
}

func (s *syncServiceStub) GetResources(ctx context.Context, principal application.Principal) ([]entity.Entity, time.Time, error) {
	return s.resources, s.timestamp, s.err
}

func (s *syncServiceStub) GetEntityRecursive(ctx context.Context, principal application.Principal, refs []entity.ReferenceInfo) ([]entity.Entity, error) {
	return s.resources, s.err
}

func (s *syncServiceStub) Store(ctx context.Context, principal application.Principal, params application.StoreParams) (application.UpdateResult, error) {
	s.storeParams = &params
	if s.err != nil {
		return application.UpdateResult{}, s.err
	}
	return s.result, nil
}

func (s *syncServiceStub) Refresh(ctx context.Context, principal application.Principal, since time.Time) (application.UpdateResult, error) {
	s.since = &since
	if s.err != nil {
		return application.UpdateResult{}, s.err
	}
	return s.result, nil
}

func (s *syncServiceStub) DoMerge(ctx context.Context, principal application.Principal, params application.MergeParams) (application.UpdateResult, error) {
	if s.err != nil {
		return application.UpdateResult{}, s.err
	}
	return s.result, nil
}

func (s *syncServiceStub) CreateIdentifiers(ctx context.Context, principal application.Principal, kind entity.Kind, count int) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ids, nil
}

type bindingServiceStub struct {
	bindings     map[string][]string
	reservations []*entity.Reservation
	nextStart    time.Time
	appointments map[string][]entity.Appointment
	conflicts    []binding.Conflict
	err          error

	nextDateOpts *binding.SearchOptions
}

func (s *bindingServiceStub) FirstAllocatableBindings(ctx context.Context, principal application.Principal, req application.BindingRequest) (map[string][]string, error) {
	return s.bindings, s.err
}

func (s *bindingServiceStub) AllAllocatableBindings(ctx context.Context, principal application.Principal, req application.BindingRequest) ([]*entity.Reservation, error) {
	return s.reservations, s.err
}

func (s *bindingServiceStub) NextAllocatableDate(ctx context.Context, principal application.Principal, req application.BindingRequest, opts binding.SearchOptions) (time.Time, error) {
	s.nextDateOpts = &opts
	if s.err != nil {
		return time.Time{}, s.err
	}
	return s.nextStart, nil
}

func (s *bindingServiceStub) QueryAppointments(ctx context.Context, principal application.Principal, allocatableIDs []string, start, end time.Time, annotationFilter map[string]string) (map[string][]entity.Appointment, error) {
	return s.appointments, s.err
}

func (s *bindingServiceStub) GetConflicts(ctx context.Context, principal application.Principal) ([]binding.Conflict, error) {
	return s.conflicts, s.err
}

type accountServiceStub struct {
	username string
	err      error

	change *application.PasswordChange
}

func (s *accountServiceStub) CanChangePassword() bool { return true }

func (s *accountServiceStub) ChangePassword(ctx context.Context, principal application.Principal, change application.PasswordChange) error {
	s.change = &change
	return s.err
}

func (s *accountServiceStub) ChangeName(ctx context.Context, principal application.Principal, title, firstname, lastname string) error {
	return s.err
}

func (s *accountServiceStub) ConfirmEmail(ctx context.Context, principal application.Principal, newEmail string) error {
	return s.err
}

func (s *accountServiceStub) ChangeEmail(ctx context.Context, principal application.Principal, newEmail, code string) error {
	return s.err
}

func (s *accountServiceStub) GetUsername(ctx context.Context, userID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.username, nil
}

func authenticatedRequest(method, target, body string, principal application.Principal) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(ContextWithPrincipal(req.Context(), principal))
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(out); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
}

func TestAuthHandlerLogin(t *testing.T) {
	t.Parallel()

	t.Run("issues the token via body, header, and cookie", func(t *testing.T) {
		t.Parallel()

		expires := time.Date(2024, time.May, 6, 10, 0, 0, 0, time.UTC)
		service := &authServiceStub{result: application.AuthenticateResult{
			User:      &entity.User{Meta: entity.Meta{ID: "user-1"}, Username: "alice", Admin: true},
			Token:     "tok-1",
			ExpiresAt: expires,
		}}
		handler := NewAuthHandler(service, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"alice","password":"pw"}`))
		recorder := httptest.NewRecorder()
		handler.Login(recorder, req)

		if recorder.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
		}
		if got := recorder.Header().Get("X-Session-Token"); got != "tok-1" {
			t.Fatalf("expected the token header, got %q", got)
		}
		cookieSet := false
		for _, cookie := range recorder.Result().Cookies() {
			if cookie.Name == "session_token" && cookie.Value == "tok-1" {
				cookieSet = true
			}
		}
		if !cookieSet {
			t.Fatal("expected the session cookie to be set")
		}
		var resp struct {
			Token  string `json:"token"`
			UserID string `json:"user_id"`
			Admin  bool   `json:"admin"`
		}
		decodeBody(t, recorder, &resp)
		if resp.Token != "tok-1" || resp.UserID != "user-1" || !resp.Admin {
			t.Fatalf("unexpected login response: %#v", resp)
		}
	})

	t.Run("maps bad credentials to 401", func(t *testing.T) {
		t.Parallel()

		handler := NewAuthHandler(&authServiceStub{err: application.ErrInvalidCredentials}, testLogger())
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"alice","password":"bad"}`))
		recorder := httptest.NewRecorder()
		handler.Login(recorder, req)

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", recorder.Code)
		}
		if !strings.Contains(recorder.Body.String(), "AUTH_INVALID_CREDENTIALS") {
			t.Fatalf("expected the credentials error code, got %s", recorder.Body.String())
		}
	})

	t.Run("rejects malformed bodies", func(t *testing.T) {
		t.Parallel()

		handler := NewAuthHandler(&authServiceStub{}, testLogger())
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{"))
		recorder := httptest.NewRecorder()
		handler.Login(recorder, req)

		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", recorder.Code)
		}
	})
}

func TestAuthHandlerLogout(t *testing.T) {
	t.Parallel()

	t.Run("revokes the presented token", func(t *testing.T) {
		t.Parallel()

		service := &authServiceStub{}
		handler := NewAuthHandler(service, testLogger())
		req := httptest.NewRequest(http.MethodPost, "/logout", nil)
		req.Header.Set("Authorization", "Bearer tok-1")
		recorder := httptest.NewRecorder()
		handler.Logout(recorder, req)

		if recorder.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", recorder.Code)
		}
		if len(service.revokedTokens) != 1 || service.revokedTokens[0] != "tok-1" {
			t.Fatalf("expected the token revoked, got %v", service.revokedTokens)
		}
		cleared := false
		for _, cookie := range recorder.Result().Cookies() {
			if cookie.Name == "session_token" && cookie.MaxAge < 0 {
				cleared = true
			}
		}
		if !cleared {
			t.Fatal("expected the session cookie to be cleared")
		}
	})

	t.Run("requires a token", func(t *testing.T) {
		t.Parallel()

		handler := NewAuthHandler(&authServiceStub{}, testLogger())
		recorder := httptest.NewRecorder()
		handler.Logout(recorder, httptest.NewRequest(http.MethodPost, "/logout", nil))

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", recorder.Code)
		}
	})
}

func TestSyncHandlerResources(t *testing.T) {
	t.Parallel()

	timestamp := time.Date(2024, time.May, 6, 9, 0, 0, 0, time.UTC)
	service := &syncServiceStub{
		resources: []entity.Entity{&entity.User{Meta: entity.Meta{ID: "user-1"}, Username: "alice"}},
		timestamp: timestamp,
	}
	handler := NewSyncHandler(service, testLogger())

	req := authenticatedRequest(http.MethodGet, "/resources", "", application.Principal{UserID: "user-1"})
	recorder := httptest.NewRecorder()
	handler.Resources(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var resp struct {
		Stored []struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		} `json:"stored"`
		LastValidated string `json:"last_validated"`
	}
	decodeBody(t, recorder, &resp)
	if len(resp.Stored) != 1 || resp.Stored[0].Kind != string(entity.KindUser) {
		t.Fatalf("unexpected payload: %#v", resp)
	}
	if resp.LastValidated != storage.FormatTimestamp(timestamp) {
		t.Fatalf("expected the wire timestamp, got %q", resp.LastValidated)
	}
}

func TestSyncHandlerRequiresPrincipal(t *testing.T) {
	t.Parallel()

	handler := NewSyncHandler(&syncServiceStub{}, testLogger())
	recorder := httptest.NewRecorder()
	handler.Resources(recorder, httptest.NewRequest(http.MethodGet, "/resources", nil))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestSyncHandlerStore(t *testing.T) {
	t.Parallel()

	principal := application.Principal{UserID: "user-1"}

	t.Run("decodes the changeset and returns the refresh", func(t *testing.T) {
		t.Parallel()

		service := &syncServiceStub{result: application.UpdateResult{
			LastValidated: time.Date(2024, time.May, 6, 9, 1, 0, 0, time.UTC),
		}}
		handler := NewSyncHandler(service, testLogger())

		body := `{
			"stored": [{"kind":"user","data":{"ID":"user-2","Username":"bob"}}],
			"removed": [{"kind":"reservation","id":"resv-1"}],
			"last_validated": "2024-05-06 09:00:00.000"
		}`
		recorder := httptest.NewRecorder()
		handler.Store(recorder, authenticatedRequest(http.MethodPost, "/store", body, principal))

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
		if service.storeParams == nil {
			t.Fatal("expected the store params forwarded")
		}
		if len(service.storeParams.Stored) != 1 || service.storeParams.Stored[0].Ref().Kind != entity.KindUser {
			t.Fatalf("unexpected stored entities: %#v", service.storeParams.Stored)
		}
		if len(service.storeParams.Removed) != 1 || service.storeParams.Removed[0].ID != "resv-1" {
			t.Fatalf("unexpected removals: %#v", service.storeParams.Removed)
		}
	})

	t.Run("maps version conflicts to 409", func(t *testing.T) {
		t.Parallel()

		service := &syncServiceStub{err: &storage.VersionConflictError{
			Reference:        entity.ReferenceInfo{ID: "resv-1", Kind: entity.KindReservation},
			ClientVersion:    2,
			CommittedVersion: 3,
		}}
		handler := NewSyncHandler(service, testLogger())

		body := `{"stored":[],"removed":[],"last_validated":"2024-05-06 09:00:00.000"}`
		recorder := httptest.NewRecorder()
		handler.Store(recorder, authenticatedRequest(http.MethodPost, "/store", body, principal))

		if recorder.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", recorder.Code)
		}
		if !strings.Contains(recorder.Body.String(), "STALE_VERSION") {
			t.Fatalf("expected the stale version code, got %s", recorder.Body.String())
		}
	})

	t.Run("maps dependency violations to 409 with the dependents", func(t *testing.T) {
		t.Parallel()

		service := &syncServiceStub{err: &storage.DependencyError{
			Reference:    entity.ReferenceInfo{ID: "alloc-1", Kind: entity.KindAllocatable},
			Dependencies: []string{"reservation 'Weekly sync'"},
		}}
		handler := NewSyncHandler(service, testLogger())

		body := `{"stored":[],"removed":[{"kind":"allocatable","id":"alloc-1"}],"last_validated":"2024-05-06 09:00:00.000"}`
		recorder := httptest.NewRecorder()
		handler.Store(recorder, authenticatedRequest(http.MethodPost, "/store", body, principal))

		if recorder.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", recorder.Code)
		}
		var resp struct {
			ErrorCode    string   `json:"error_code"`
			Dependencies []string `json:"dependencies"`
		}
		decodeBody(t, recorder, &resp)
		if resp.ErrorCode != "DEPENDENCY" || len(resp.Dependencies) != 1 {
			t.Fatalf("unexpected dependency response: %#v", resp)
		}
	})

	t.Run("rejects unknown entity kinds", func(t *testing.T) {
		t.Parallel()

		handler := NewSyncHandler(&syncServiceStub{}, testLogger())
		body := `{"stored":[{"kind":"room","data":{}}],"removed":[],"last_validated":"2024-05-06 09:00:00.000"}`
		recorder := httptest.NewRecorder()
		handler.Store(recorder, authenticatedRequest(http.MethodPost, "/store", body, principal))

		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", recorder.Code)
		}
	})

	t.Run("requires the synchronization point", func(t *testing.T) {
		t.Parallel()

		handler := NewSyncHandler(&syncServiceStub{}, testLogger())
		body := `{"stored":[],"removed":[]}`
		recorder := httptest.NewRecorder()
		handler.Store(recorder, authenticatedRequest(http.MethodPost, "/store", body, principal))

		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", recorder.Code)
		}
	})
}

func TestSyncHandlerRefresh(t *testing.T) {
	t.Parallel()

	principal := application.Principal{UserID: "user-1"}

	t.Run("parses the since parameter", func(t *testing.T) {
		t.Parallel()

		service := &syncServiceStub{result: application.UpdateResult{
			Removed:       []entity.ReferenceInfo{{ID: "resv-1", Kind: entity.KindReservation}},
			LastValidated: time.Date(2024, time.May, 6, 9, 1, 0, 0, time.UTC),
		}}
		handler := NewSyncHandler(service, testLogger())

		target := "/refresh?since=" + "2024-05-06+09%3A00%3A00.000"
		recorder := httptest.NewRecorder()
		handler.Refresh(recorder, authenticatedRequest(http.MethodGet, target, "", principal))

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
		want := time.Date(2024, time.May, 6, 9, 0, 0, 0, time.UTC)
		if service.since == nil || !service.since.Equal(want) {
			t.Fatalf("expected since %v, got %v", want, service.since)
		}
		var resp struct {
			Removed []struct {
				Kind string `json:"kind"`
				ID   string `json:"id"`
			} `json:"removed"`
		}
		decodeBody(t, recorder, &resp)
		if len(resp.Removed) != 1 || resp.Removed[0].ID != "resv-1" {
			t.Fatalf("unexpected removals: %#v", resp.Removed)
		}
	})

	t.Run("rejects a missing since parameter", func(t *testing.T) {
		t.Parallel()

		handler := NewSyncHandler(&syncServiceStub{}, testLogger())
		recorder := httptest.NewRecorder()
		handler.Refresh(recorder, authenticatedRequest(http.MethodGet, "/refresh", "", principal))

		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", recorder.Code)
		}
	})
}

func TestSyncHandlerIdentifiers(t *testing.T) {
	t.Parallel()

	principal := application.Principal{UserID: "user-1"}

	service := &syncServiceStub{ids: []string{"id-1", "id-2"}}
	handler := NewSyncHandler(service, testLogger())

	recorder := httptest.NewRecorder()
	handler.Identifiers(recorder, authenticatedRequest(http.MethodPost, "/identifiers?kind=reservation&count=2", "", principal))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var resp struct {
		IDs []string `json:"ids"`
	}
	decodeBody(t, recorder, &resp)
	if len(resp.IDs) != 2 {
		t.Fatalf("expected 2 identifiers, got %v", resp.IDs)
	}

	recorder = httptest.NewRecorder()
	handler.Identifiers(recorder, authenticatedRequest(http.MethodPost, "/identifiers?kind=reservation&count=zero", "", principal))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad count, got %d", recorder.Code)
	}
}

func TestBindingHandlerNextDate(t *testing.T) {
	t.Parallel()

	principal := application.Principal{UserID: "user-1"}

	t.Run("forwards the search options", func(t *testing.T) {
		t.Parallel()

		service := &bindingServiceStub{nextStart: time.Date(2024, time.May, 6, 12, 0, 0, 0, time.UTC)}
		handler := NewBindingHandler(service, testLogger())

		body := `{
			"allocatable_ids": ["alloc-1"],
			"appointment": {"ID":"appt-1","Start":"2024-05-06T10:00:00Z","End":"2024-05-06T11:00:00Z"},
			"worktime_start_minutes": 480,
			"worktime_end_minutes": 1080,
			"excluded_days": [0],
			"rows_per_hour": 2
		}`
		recorder := httptest.NewRecorder()
		handler.NextDate(recorder, authenticatedRequest(http.MethodPost, "/bindings/next-date", body, principal))

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
		if service.nextDateOpts == nil {
			t.Fatal("expected the search options forwarded")
		}
		if service.nextDateOpts.WorktimeStartMinutes != 480 || service.nextDateOpts.RowsPerHour != 2 {
			t.Fatalf("unexpected options: %#v", service.nextDateOpts)
		}
		if _, ok := service.nextDateOpts.ExcludedDays[time.Sunday]; !ok {
			t.Fatalf("expected Sunday excluded, got %#v", service.nextDateOpts.ExcludedDays)
		}
		var resp struct {
			Start string `json:"start"`
		}
		decodeBody(t, recorder, &resp)
		if resp.Start != storage.FormatTimestamp(service.nextStart) {
			t.Fatalf("expected the wire start, got %q", resp.Start)
		}
	})

	t.Run("maps an exhausted search to 404", func(t *testing.T) {
		t.Parallel()

		handler := NewBindingHandler(&bindingServiceStub{err: binding.ErrNoFreeSlot}, testLogger())
		body := `{"allocatable_ids":["alloc-1"],"appointment":{"ID":"appt-1"}}`
		recorder := httptest.NewRecorder()
		handler.NextDate(recorder, authenticatedRequest(http.MethodPost, "/bindings/next-date", body, principal))

		if recorder.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", recorder.Code)
		}
		if !strings.Contains(recorder.Body.String(), "NO_FREE_SLOT") {
			t.Fatalf("expected the no-free-slot code, got %s", recorder.Body.String())
		}
	})

	t.Run("maps timeouts to 504", func(t *testing.T) {
		t.Parallel()

		handler := NewBindingHandler(&bindingServiceStub{err: application.ErrTimeout}, testLogger())
		body := `{"allocatable_ids":["alloc-1"],"appointment":{"ID":"appt-1"}}`
		recorder := httptest.NewRecorder()
		handler.NextDate(recorder, authenticatedRequest(http.MethodPost, "/bindings/next-date", body, principal))

		if recorder.Code != http.StatusGatewayTimeout {
			t.Fatalf("expected 504, got %d", recorder.Code)
		}
	})
}

func TestBindingHandlerFirst(t *testing.T) {
	t.Parallel()

	principal := application.Principal{UserID: "user-1"}
	service := &bindingServiceStub{bindings: map[string][]string{"alloc-1": {"appt-1"}}}
	handler := NewBindingHandler(service, testLogger())

	body := `{"allocatable_ids":["alloc-1"],"appointments":[{"ID":"appt-1"}]}`
	recorder := httptest.NewRecorder()
	handler.First(recorder, authenticatedRequest(http.MethodPost, "/bindings/first", body, principal))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var resp struct {
		Bindings map[string][]string `json:"bindings"`
	}
	decodeBody(t, recorder, &resp)
	if len(resp.Bindings["alloc-1"]) != 1 {
		t.Fatalf("unexpected bindings: %#v", resp.Bindings)
	}
}

func TestBindingHandlerConflicts(t *testing.T) {
	t.Parallel()

	principal := application.Principal{UserID: "user-1"}
	service := &bindingServiceStub{conflicts: []binding.Conflict{{
		AllocatableID:  "alloc-1",
		Reservation1ID: "resv-1",
		Appointment1ID: "appt-1",
		Reservation2ID: "resv-2",
		Appointment2ID: "appt-2",
	}}}
	handler := NewBindingHandler(service, testLogger())

	recorder := httptest.NewRecorder()
	handler.Conflicts(recorder, authenticatedRequest(http.MethodGet, "/conflicts", "", principal))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var resp struct {
		Conflicts []struct {
			AllocatableID  string `json:"allocatable_id"`
			Reservation1ID string `json:"reservation1_id"`
		} `json:"conflicts"`
	}
	decodeBody(t, recorder, &resp)
	if len(resp.Conflicts) != 1 || resp.Conflicts[0].AllocatableID != "alloc-1" {
		t.Fatalf("unexpected conflicts: %#v", resp.Conflicts)
	}
}

func TestAccountHandlerChangePassword(t *testing.T) {
	t.Parallel()

	principal := application.Principal{UserID: "user-1"}

	t.Run("defaults the target to the principal", func(t *testing.T) {
		t.Parallel()

		service := &accountServiceStub{}
		handler := NewAccountHandler(service, testLogger())

		body := `{"old_password":"old","new_password":"new"}`
		recorder := httptest.NewRecorder()
		handler.ChangePassword(recorder, authenticatedRequest(http.MethodPost, "/account/password", body, principal))

		if recorder.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", recorder.Code)
		}
		if service.change == nil || service.change.UserID != "user-1" {
			t.Fatalf("expected the principal as target, got %#v", service.change)
		}
	})

	t.Run("maps validation errors to 422", func(t *testing.T) {
		t.Parallel()

		vErr := &application.ValidationError{FieldErrors: map[string]string{"new_password": "must not be empty"}}
		handler := NewAccountHandler(&accountServiceStub{err: vErr}, testLogger())

		body := `{"new_password":""}`
		recorder := httptest.NewRecorder()
		handler.ChangePassword(recorder, authenticatedRequest(http.MethodPost, "/account/password", body, principal))

		if recorder.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", recorder.Code)
		}
		if !strings.Contains(recorder.Body.String(), "new_password") {
			t.Fatalf("expected the field error, got %s", recorder.Body.String())
		}
	})

	t.Run("maps foreign targets to 403", func(t *testing.T) {
		t.Parallel()

		handler := NewAccountHandler(&accountServiceStub{err: application.ErrUnauthorized}, testLogger())
		body := `{"user_id":"user-2","new_password":"new"}`
		recorder := httptest.NewRecorder()
		handler.ChangePassword(recorder, authenticatedRequest(http.MethodPost, "/account/password", body, principal))

		if recorder.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", recorder.Code)
		}
	})
}

func TestAccountHandlerChangeEmail(t *testing.T) {
	t.Parallel()

	principal := application.Principal{UserID: "user-1"}
	handler := NewAccountHandler(&accountServiceStub{err: application.ErrInvalidSecurityCode}, testLogger())

	body := `{"email":"new@example.org","code":"000"}`
	recorder := httptest.NewRecorder()
	handler.ChangeEmail(recorder, authenticatedRequest(http.MethodPost, "/account/email", body, principal))

	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "INVALID_SECURITY_CODE") {
		t.Fatalf("expected the security code error, got %s", recorder.Body.String())
	}
}

func TestAccountHandlerUsername(t *testing.T) {
	t.Parallel()

	principal := application.Principal{UserID: "user-1"}
	handler := NewAccountHandler(&accountServiceStub{username: "alice"}, testLogger())

	recorder := httptest.NewRecorder()
	handler.Username(recorder, authenticatedRequest(http.MethodGet, "/account/username?user_id=user-1", "", principal))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var resp struct {
		Username string `json:"username"`
	}
	decodeBody(t, recorder, &resp)
	if resp.Username != "alice" {
		t.Fatalf("expected alice, got %q", resp.Username)
	}

	recorder = httptest.NewRecorder()
	handler.Username(recorder, authenticatedRequest(http.MethodGet, "/account/username", "", principal))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without user_id, got %d", recorder.Code)
	}

	missing := NewAccountHandler(&accountServiceStub{err: application.ErrNotFound}, testLogger())
	recorder = httptest.NewRecorder()
	missing.Username(recorder, authenticatedRequest(http.MethodGet, "/account/username?user_id=user-gone", "", principal))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestAdminHandlerRestart(t *testing.T) {
	t.Parallel()

	t.Run("requires an administrator", func(t *testing.T) {
		t.Parallel()

		handler := NewAdminHandler(func() { t.Fatal("restart must not run for non-admins") }, testLogger())
		recorder := httptest.NewRecorder()
		handler.Restart(recorder, authenticatedRequest(http.MethodPost, "/restart", "", application.Principal{UserID: "user-1"}))

		if recorder.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", recorder.Code)
		}
	})

	t.Run("schedules the restart for administrators", func(t *testing.T) {
		t.Parallel()

		restarted := make(chan struct{})
		handler := NewAdminHandler(func() { close(restarted) }, testLogger())
		recorder := httptest.NewRecorder()
		handler.Restart(recorder, authenticatedRequest(http.MethodPost, "/restart", "", application.Principal{UserID: "user-9", IsAdmin: true}))

		if recorder.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", recorder.Code)
		}
		select {
		case <-restarted:
		case <-time.After(time.Second):
			t.Fatal("expected the restart callback to run")
		}
	})
}

func TestRouterMethodChecks(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig{
		Auth: NewAuthHandler(&authServiceStub{err: errors.New("unused")}, testLogger()),
		Sync: NewSyncHandler(&syncServiceStub{}, testLogger()),
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/login", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET /login, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Allow"); got != http.MethodPost {
		t.Fatalf("expected Allow: POST, got %q", got)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/resources", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST /resources, got %d", recorder.Code)
	}
}

func TestRouterAppliesMiddleware(t *testing.T) {
	t.Parallel()

	validator := &sessionValidatorStub{principal: application.Principal{UserID: "user-1"}}
	service := &syncServiceStub{timestamp: time.Date(2024, time.May, 6, 9, 0, 0, 0, time.UTC)}
	router := NewRouter(RouterConfig{
		Sync:       NewSyncHandler(service, testLogger()),
		Middleware: []func(http.Handler) http.Handler{RequireSession(validator, testLogger())},
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/resources", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", recorder.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/resources", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 with a valid token, got %d: %s", recorder.Code, recorder.Body.String())
	}
}
