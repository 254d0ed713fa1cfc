package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goizzi/backoffice-service/internal/app"
	"github.com/goizzi/backoffice-service/internal/store"
)

type stubVerifier struct {
	tokens map[string]string
}

func (v stubVerifier) Verify(_ context.Context, idToken string) (string, error) {
	if uid, ok := v.tokens[idToken]; ok {
		return uid, nil
	}
	return "", errors.New("invalid token")
}

type countingStore struct {
	store.DocumentStore
	mu    sync.Mutex
	calls int
}

func (s *countingStore) hit() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *countingStore) Get(ctx context.Context, path string) (*store.Document, error) {
	s.hit()
	return s.DocumentStore.Get(ctx, path)
}

func (s *countingStore) GetAll(ctx context.Context, paths []string) ([]*store.Document, error) {
	s.hit()
	return s.DocumentStore.GetAll(ctx, paths)
}

func (s *countingStore) SetMerge(ctx context.Context, path string, fields map[string]any) error {
	s.hit()
	return s.DocumentStore.SetMerge(ctx, path, fields)
}

func (s *countingStore) Commit(ctx context.Context, writes []store.Write) error {
	s.hit()
	return s.DocumentStore.Commit(ctx, writes)
}

func (s *countingStore) List(ctx context.Context, collection string, opts store.ListOptions) ([]*store.Document, error) {
	s.hit()
	return s.DocumentStore.List(ctx, collection, opts)
}

type testServer struct {
	router   http.Handler
	mem      *store.MemoryStore
	counts   *countingStore
	sessions *app.SessionService
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(t *testing.T, withStore bool, rateLimit int) *testServer {
	t.Helper()
	logger := quietLogger()
	mem := store.NewMemoryStore()
	mem.Seed(store.UserPath("u-admin"), map[string]any{"role": "admin", "status": "active", "displayName": "Ada"})
	mem.Seed(store.UserPath("u-gone"), map[string]any{"role": "admin", "status": "inactive"})
	counts := &countingStore{DocumentStore: mem}

	var docs store.DocumentStore
	if withStore {
		docs = counts
	}
	service := app.NewService(app.Options{Store: docs, Logger: logger})
	verifier := stubVerifier{tokens: map[string]string{"tok-admin": "u-admin", "tok-gone": "u-gone"}}
	sessions := app.NewSessionService(service.Users(), verifier, app.NewMemorySessionCache(), app.SessionConfig{Secret: "test-secret"}, logger)

	h := NewHandler(HandlerOptions{
		Service:          service,
		Sessions:         sessions,
		Logger:           logger,
		SecureCookies:    true,
		SessionRateLimit: rateLimit,
	})
	router := NewRouter(h, RouterOptions{Logger: logger, Users: service.Users()})
	return &testServer{router: router, mem: mem, counts: counts, sessions: sessions}
}

func (s *testServer) cookie(t *testing.T) *http.Cookie {
	t.Helper()
	value, err := s.sessions.CreateSessionCookie(context.Background(), "tok-admin")
	if err != nil {
		t.Fatalf("CreateSessionCookie: %v", err)
	}
	return &http.Cookie{Name: app.SessionCookieName, Value: value}
}

func (s *testServer) do(method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["error"]; got != message {
		t.Fatalf("expected error %q, got %v", message, got)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, false, 0)
	rec := srv.do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["status"] != "ok" {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}

func TestSessionRoutesRejectBeforeStoreAccess(t *testing.T) {
	srv := newTestServer(t, true, 0)

	requests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/borrowers/B1", ""},
		{http.MethodPost, "/borrowers/B1/follow-up/clear", ""},
		{http.MethodPost, "/borrowers/B1/kyc-missing", `{"kycMissingCount":2}`},
		{http.MethodPost, "/borrowers/B1/notes", `{"note":"hi"}`},
		{http.MethodPatch, "/loans/L1/notes/N1", `{"isActive":true}`},
		{http.MethodPatch, "/loans/L1/repayment-schedule/S1/payment", `{"action":"apply"}`},
		{http.MethodGet, "/branches", ""},
	}
	for _, tc := range requests {
		rec := srv.do(tc.method, tc.path, tc.body, nil)
		expectError(t, rec, http.StatusUnauthorized, "Unauthorized.")
	}

	bogus := &http.Cookie{Name: app.SessionCookieName, Value: "not-a-session"}
	expectError(t, srv.do(http.MethodGet, "/borrowers/B1", "", bogus), http.StatusUnauthorized, "Unauthorized.")

	if n := srv.counts.count(); n != 0 {
		t.Fatalf("expected no store calls, got %d", n)
	}
}

func TestBearerTokenIsAccepted(t *testing.T) {
	srv := newTestServer(t, true, 0)
	srv.mem.Seed(store.BorrowerPath("B1"), map[string]any{"fullName": "Juan"})

	req := httptest.NewRequest(http.MethodGet, "/borrowers/B1", nil)
	req.Header.Set("Authorization", "Bearer tok-admin")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestKycDecisionThenApplicationRead(t *testing.T) {
	srv := newTestServer(t, true, 0)
	srv.mem.Seed(store.KycPath("B1", "K1"), map[string]any{"type": "proof_of_billing"})
	srv.mem.Seed(store.ApplicationPath("B1", "APP-1"), map[string]any{"status": "Reviewed"})

	rec := srv.do(http.MethodPost, "/borrowers/B1/kyc/K1/decision",
		`{"applicationId":"APP-1","action":"Approved","actorName":"Jane Cruz"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("decision: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	note, _ := decodeBody(t, rec)["note"].(map[string]interface{})
	if note["note"] != "Proof of billing approved." || note["createdByName"] != "Jane Cruz" {
		t.Fatalf("unexpected note %#v", note)
	}

	rec = srv.do(http.MethodGet, "/borrowers/B1/application/APP-1", "", srv.cookie(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("application: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	application, _ := decodeBody(t, rec)["application"].(map[string]interface{})
	decision, ok := application["lastKycDecision"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected lastKycDecision, got %#v", application)
	}
	if decision["action"] != "approve" || decision["kycId"] != "K1" {
		t.Fatalf("unexpected decision %#v", decision)
	}
}

func TestHandlerValidation(t *testing.T) {
	srv := newTestServer(t, true, 0)
	cookie := srv.cookie(t)

	cases := []struct {
		name    string
		method  string
		path    string
		body    string
		cookie  *http.Cookie
		message string
	}{
		{"decision invalid json", http.MethodPost, "/borrowers/B1/kyc/K1/decision", `{"action":`, nil, "Invalid JSON payload."},
		{"decision missing action", http.MethodPost, "/borrowers/B1/kyc/K1/decision", `{"applicationId":"A"}`, nil, "Missing action."},
		{"approval not boolean", http.MethodPost, "/borrowers/B1/kyc/K1/approval", `{"isApproved":"yes"}`, nil, "isApproved must be a boolean."},
		{"kyc missing not number", http.MethodPost, "/borrowers/B1/kyc-missing", `{"kycMissingCount":"3"}`, cookie, "kycMissingCount must be a number."},
		{"kyc missing too large", http.MethodPost, "/borrowers/B1/kyc-missing", `{"kycMissingCount":1e300}`, cookie, "kycMissingCount is too large."},
		{"manual checks not strings", http.MethodPost, "/borrowers/B1/application/A1/manual-checks", `{"manualVerified":["a",1]}`, cookie, "manualVerified must be an array of strings."},
		{"note flags empty", http.MethodPatch, "/borrowers/B1/notes/N1", `{}`, cookie, "Missing update fields."},
		{"status invalid", http.MethodPost, "/borrowers/B1/application/A1/status", `{"status":"Maybe"}`, nil, "status must be a valid value."},
		{"payment without amount", http.MethodPatch, "/loans/L1/repayment-schedule/S1/payment", `{"action":"apply","dueDate":"2025-04-01"}`, cookie, "Amount paid is required."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(tc.method, tc.path, tc.body, tc.cookie)
			expectError(t, rec, http.StatusBadRequest, tc.message)
		})
	}
}

func TestNotFoundMessages(t *testing.T) {
	srv := newTestServer(t, true, 0)
	cookie := srv.cookie(t)

	expectError(t, srv.do(http.MethodGet, "/borrowers/B404", "", cookie), http.StatusNotFound, "Borrower not found.")
	expectError(t, srv.do(http.MethodPatch, "/borrowers/B1/notes/N404", `{"isActive":false}`, cookie), http.StatusNotFound, "Note not found.")
	expectError(t, srv.do(http.MethodPatch, "/loans/L1/repayment-schedule/S404/payment",
		`{"action":"apply","dueDate":"2025-04-01","amountPaidAmount":100,"breakdown":{"principalAmount":100}}`, cookie),
		http.StatusNotFound, "Schedule not found.")
}

func TestMissingStoreReportsCredentials(t *testing.T) {
	srv := newTestServer(t, false, 0)

	expectError(t, srv.do(http.MethodPost, "/borrowers/B1/kyc/K1/approval", `{"isApproved":true}`, nil),
		http.StatusInternalServerError, credentialsMessage)
	expectError(t, srv.do(http.MethodPost, "/session", `{"idToken":"tok-admin"}`, nil),
		http.StatusInternalServerError, credentialsMessage)
}

func TestAddNoteDefaultsAuthorToSession(t *testing.T) {
	srv := newTestServer(t, true, 0)

	rec := srv.do(http.MethodPost, "/borrowers/B1/notes", `{"note":"  called borrower  "}`, srv.cookie(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	note, _ := decodeBody(t, rec)["note"].(map[string]interface{})
	if note["createdByUserId"] != "u-admin" || note["createdByName"] != "Ada" {
		t.Fatalf("expected session author, got %#v", note)
	}

	rec = srv.do(http.MethodGet, "/borrowers/B1/notes", "", srv.cookie(t))
	notes, _ := decodeBody(t, rec)["notes"].([]interface{})
	if len(notes) != 1 {
		t.Fatalf("expected one note, got %s", rec.Body.String())
	}
}

func TestCreateSession(t *testing.T) {
	srv := newTestServer(t, true, 0)

	expectError(t, srv.do(http.MethodPost, "/session", `{}`, nil), http.StatusBadRequest, "Missing id token.")
	expectError(t, srv.do(http.MethodPost, "/session", `{"idToken":42}`, nil), http.StatusBadRequest, "Missing id token.")
	expectError(t, srv.do(http.MethodPost, "/session", `{"idToken":"tok-gone"}`, nil), http.StatusForbidden, app.ErrStaffNotFound.Error())

	rec := srv.do(http.MethodPost, "/session", `{"idToken":"tok-admin"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != app.SessionCookieName || !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Fatalf("unexpected cookie attributes %#v", c)
	}
	if c.MaxAge != int((12 * time.Hour).Seconds()) {
		t.Fatalf("expected 12h max age, got %d", c.MaxAge)
	}

	rec = srv.do(http.MethodGet, "/status", "", &http.Cookie{Name: c.Name, Value: c.Value})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected issued cookie to authenticate, got %d", rec.Code)
	}
}

func TestCreateSessionRateLimited(t *testing.T) {
	srv := newTestServer(t, true, 2)

	for i := 0; i < 2; i++ {
		rec := srv.do(http.MethodPost, "/session", `{"idToken":"bad"}`, nil)
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("attempt %d limited too early", i+1)
		}
	}
	rec := srv.do(http.MethodPost, "/session", `{"idToken":"tok-admin"}`, nil)
	expectError(t, rec, http.StatusTooManyRequests, app.ErrRateLimited.Error())
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestCreateSessionRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	srv := newTestServer(t, true, 2)

	var codes []int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(`{"idToken":"bad"}`))
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[2] != http.StatusTooManyRequests || codes[3] != http.StatusTooManyRequests {
		t.Fatalf("expected the third attempt to be limited, got %v", codes)
	}
}

func TestDeleteSessionClearsCookie(t *testing.T) {
	srv := newTestServer(t, true, 0)

	rec := srv.do(http.MethodDelete, "/session", "", srv.cookie(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 || cookies[0].Value != "" {
		t.Fatalf("expected cleared cookie, got %#v", cookies)
	}
}

func TestDeleteSessionRevokesCookie(t *testing.T) {
	srv := newTestServer(t, true, 0)
	cookie := srv.cookie(t)

	if rec := srv.do(http.MethodGet, "/status", "", cookie); rec.Code != http.StatusOK {
		t.Fatalf("expected cookie to authenticate, got %d", rec.Code)
	}
	if rec := srv.do(http.MethodDelete, "/session", "", cookie); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	expectError(t, srv.do(http.MethodGet, "/status", "", cookie), http.StatusUnauthorized, "Unauthorized.")
}
