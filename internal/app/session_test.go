package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goizzi/backoffice-service/internal/domain"
	"github.com/goizzi/backoffice-service/internal/store"
)

type stubVerifier struct {
	mu     sync.Mutex
	tokens map[string]string
	calls  int
}

func (v *stubVerifier) Verify(_ context.Context, idToken string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	uid, ok := v.tokens[idToken]
	if !ok {
		return "", errors.New("token signature invalid")
	}
	return uid, nil
}

func (v *stubVerifier) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func newSessionFixture(t *testing.T, secret string) (*SessionService, *stubVerifier, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	mem.Seed(store.UserPath("u-admin"), map[string]any{"role": "admin", "status": "active", "displayName": "Ada"})
	mem.Seed(store.UserPath("u-gone"), map[string]any{"role": "team member", "status": "inactive"})
	mem.Seed(store.UserPath("u-odd"), map[string]any{"role": "janitor", "status": "active"})

	verifier := &stubVerifier{tokens: map[string]string{
		"tok-admin": "u-admin",
		"tok-gone":  "u-gone",
		"tok-odd":   "u-odd",
		"tok-ghost": "u-ghost",
	}}
	users := NewUserDirectory(mem, quietLogger())
	svc := NewSessionService(users, verifier, NewMemorySessionCache(), SessionConfig{Secret: secret}, nil)
	svc.now = func() time.Time { return testNow }
	return svc, verifier, mem
}

func TestSessionCookieRoundTrip(t *testing.T) {
	svc, _, _ := newSessionFixture(t, "test-secret")
	ctx := context.Background()

	cookie, err := svc.CreateSessionCookie(ctx, "tok-admin")
	if err != nil {
		t.Fatalf("CreateSessionCookie: %v", err)
	}
	session := svc.Resolve(ctx, cookie)
	if session == nil {
		t.Fatal("expected session for freshly issued cookie")
	}
	if session.UID != "u-admin" || session.Role != domain.RoleAdmin || session.Status != domain.StatusActive {
		t.Fatalf("unexpected session: %#v", session)
	}
	if svc.MaxAge() != DefaultSessionMaxAge {
		t.Fatalf("expected default max age, got %s", svc.MaxAge())
	}
}

func TestCreateSessionCookieRejectsNonStaff(t *testing.T) {
	svc, _, _ := newSessionFixture(t, "test-secret")
	ctx := context.Background()

	for _, token := range []string{"tok-gone", "tok-odd", "tok-ghost"} {
		if _, err := svc.CreateSessionCookie(ctx, token); !errors.Is(err, ErrStaffNotFound) {
			t.Fatalf("%s: expected ErrStaffNotFound, got %v", token, err)
		}
	}
	if _, err := svc.CreateSessionCookie(ctx, "forged"); !errors.Is(err, ErrInvalidIDToken) {
		t.Fatalf("expected ErrInvalidIDToken, got %v", err)
	}
}

func TestCreateSessionCookieWithoutSecret(t *testing.T) {
	svc, _, _ := newSessionFixture(t, "")
	if _, err := svc.CreateSessionCookie(context.Background(), "tok-admin"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if svc.Resolve(context.Background(), "anything") != nil {
		t.Fatal("expected nil session when unconfigured")
	}
}

func TestResolveRejectsExpiredCookie(t *testing.T) {
	svc, _, _ := newSessionFixture(t, "test-secret")
	ctx := context.Background()

	cookie, err := svc.CreateSessionCookie(ctx, "tok-admin")
	if err != nil {
		t.Fatalf("CreateSessionCookie: %v", err)
	}
	svc.now = func() time.Time { return testNow.Add(13 * time.Hour) }
	if svc.Resolve(ctx, cookie) != nil {
		t.Fatal("expected expired cookie to be rejected")
	}
}

func TestResolveRejectsForeignSignature(t *testing.T) {
	issuer, _, _ := newSessionFixture(t, "secret-a")
	verifier, _, _ := newSessionFixture(t, "secret-b")
	ctx := context.Background()

	cookie, err := issuer.CreateSessionCookie(ctx, "tok-admin")
	if err != nil {
		t.Fatalf("CreateSessionCookie: %v", err)
	}
	if verifier.Resolve(ctx, cookie) != nil {
		t.Fatal("expected cookie signed with another secret to be rejected")
	}
}

func TestResolveIDTokenCachesNegativeResults(t *testing.T) {
	svc, verifier, _ := newSessionFixture(t, "test-secret")
	ctx := context.Background()

	if svc.ResolveIDToken(ctx, "forged") != nil {
		t.Fatal("expected nil for forged token")
	}
	if svc.ResolveIDToken(ctx, "forged") != nil {
		t.Fatal("expected nil for forged token")
	}
	if verifier.callCount() != 1 {
		t.Fatalf("expected negative result to be cached, verifier called %d times", verifier.callCount())
	}

	if s := svc.ResolveIDToken(ctx, "tok-admin"); s == nil || s.UID != "u-admin" {
		t.Fatalf("unexpected session %#v", s)
	}
}

func TestInvalidateDropsCachedSession(t *testing.T) {
	svc, _, mem := newSessionFixture(t, "test-secret")
	ctx := context.Background()

	cookie, err := svc.CreateSessionCookie(ctx, "tok-admin")
	if err != nil {
		t.Fatalf("CreateSessionCookie: %v", err)
	}
	if svc.Resolve(ctx, cookie) == nil {
		t.Fatal("expected session")
	}

	mem.Seed(store.UserPath("u-admin"), map[string]any{"role": "admin", "status": "suspend"})
	if svc.Resolve(ctx, cookie) == nil {
		t.Fatal("expected cached session before invalidation")
	}
	svc.Invalidate(ctx, cookie)
	if svc.Resolve(ctx, cookie) != nil {
		t.Fatal("expected suspended user to lose the session after invalidation")
	}
}

func TestInvalidateRevokesCookieUntilExpiry(t *testing.T) {
	svc, _, _ := newSessionFixture(t, "test-secret")
	cache := svc.cache.(*MemorySessionCache)
	now := testNow
	clock := func() time.Time { return now }
	svc.now = clock
	cache.now = clock
	ctx := context.Background()

	signedOut, err := svc.CreateSessionCookie(ctx, "tok-admin")
	if err != nil {
		t.Fatalf("CreateSessionCookie: %v", err)
	}
	other, err := svc.CreateSessionCookie(ctx, "tok-admin")
	if err != nil {
		t.Fatalf("CreateSessionCookie: %v", err)
	}
	if svc.Resolve(ctx, signedOut) == nil {
		t.Fatal("expected session before sign out")
	}

	svc.Invalidate(ctx, signedOut)
	if svc.Resolve(ctx, signedOut) != nil {
		t.Fatal("expected revoked cookie to be rejected")
	}

	now = now.Add(11 * time.Hour)
	if svc.Resolve(ctx, signedOut) != nil {
		t.Fatal("expected revoked cookie to stay rejected after the cache ttl")
	}
	if s := svc.Resolve(ctx, other); s == nil || s.UID != "u-admin" {
		t.Fatalf("expected other cookie to stay valid, got %#v", s)
	}
}

func TestInvalidateIgnoresForeignCookie(t *testing.T) {
	svc, _, _ := newSessionFixture(t, "test-secret")
	forger, _, _ := newSessionFixture(t, "other-secret")
	ctx := context.Background()

	forged, err := forger.CreateSessionCookie(ctx, "tok-admin")
	if err != nil {
		t.Fatalf("CreateSessionCookie: %v", err)
	}
	svc.Invalidate(ctx, forged)
	if n := len(svc.cache.(*MemorySessionCache).entries); n != 0 {
		t.Fatalf("expected no revocation for an unverified cookie, got %d entries", n)
	}
}

func TestMemorySessionCacheExpiry(t *testing.T) {
	cache := NewMemorySessionCache()
	now := testNow
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	if err := cache.Set(ctx, "k", &domain.StaffSession{UID: "u1"}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cache.Set(ctx, "neg", nil, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if s, found, _ := cache.Get(ctx, "k"); !found || s.UID != "u1" {
		t.Fatalf("expected cached session, got %#v found=%v", s, found)
	}
	if s, found, _ := cache.Get(ctx, "neg"); !found || s != nil {
		t.Fatalf("expected cached negative, got %#v found=%v", s, found)
	}

	now = now.Add(2 * time.Minute)
	if _, found, _ := cache.Get(ctx, "k"); found {
		t.Fatal("expected entry to expire")
	}
}
