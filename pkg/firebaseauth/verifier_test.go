package firebaseauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type certFixture struct {
	key          *rsa.PrivateKey
	certPEM      string
	server       *httptest.Server
	requests     atomic.Int32
	cacheControl atomic.Value
}

func newCertFixture(t *testing.T) *certFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken.system.gserviceaccount.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	f := &certFixture{
		key:     key,
		certPEM: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
	}
	f.cacheControl.Store("public, max-age=3600, must-revalidate, no-transform")
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		w.Header().Set("Cache-Control", f.cacheControl.Load().(string))
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"kid-1": f.certPEM})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *certFixture) sign(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss": "https://securetoken.google.com/lending-prod",
		"aud": "lending-prod",
		"sub": "uid-123",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func TestVerifyAcceptsValidToken(t *testing.T) {
	f := newCertFixture(t)
	v := NewVerifier("lending-prod", f.server.URL)

	uid, err := v.Verify(context.Background(), f.sign(t, "kid-1", validClaims(time.Now())))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if uid != "uid-123" {
		t.Fatalf("expected uid-123, got %q", uid)
	}

	if _, err := v.Verify(context.Background(), f.sign(t, "kid-1", validClaims(time.Now()))); err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if got := f.requests.Load(); got != 1 {
		t.Fatalf("expected certificates to be cached, fetched %d times", got)
	}
}

func TestVerifyHonoursCacheMaxAge(t *testing.T) {
	f := newCertFixture(t)
	f.cacheControl.Store("public, max-age=120")
	clock := &testClock{t: time.Now()}
	v := NewVerifier("lending-prod", f.server.URL)
	v.now = clock.now

	verify := func() {
		t.Helper()
		if _, err := v.Verify(context.Background(), f.sign(t, "kid-1", validClaims(clock.t))); err != nil {
			t.Fatalf("Verify: %v", err)
		}
	}

	verify()
	clock.t = clock.t.Add(119 * time.Second)
	verify()
	if got := f.requests.Load(); got != 1 {
		t.Fatalf("expected one fetch inside max-age, got %d", got)
	}

	clock.t = clock.t.Add(2 * time.Second)
	verify()
	if got := f.requests.Load(); got != 2 {
		t.Fatalf("expected a refetch once max-age elapsed, got %d fetches", got)
	}
}

func TestVerifyRejectsBadClaims(t *testing.T) {
	f := newCertFixture(t)
	v := NewVerifier("lending-prod", f.server.URL)

	cases := map[string]func(jwt.MapClaims){
		"wrong audience": func(c jwt.MapClaims) { c["aud"] = "other-project" },
		"wrong issuer":   func(c jwt.MapClaims) { c["iss"] = "https://securetoken.google.com/other-project" },
		"no subject":     func(c jwt.MapClaims) { delete(c, "sub") },
		"expired":        func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() },
		"no expiry":      func(c jwt.MapClaims) { delete(c, "exp") },
		"issued later":   func(c jwt.MapClaims) { c["iat"] = time.Now().Add(time.Hour).Unix() },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			claims := validClaims(time.Now())
			mutate(claims)
			if _, err := v.Verify(context.Background(), f.sign(t, "kid-1", claims)); err == nil {
				t.Fatal("expected verification to fail")
			}
		})
	}
}

func TestVerifyAcceptsAudienceList(t *testing.T) {
	f := newCertFixture(t)
	v := NewVerifier("lending-prod", f.server.URL)

	claims := validClaims(time.Now())
	claims["aud"] = []string{"other-project", "lending-prod"}
	if _, err := v.Verify(context.Background(), f.sign(t, "kid-1", claims)); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsUnknownKidWithoutRefetchStorm(t *testing.T) {
	f := newCertFixture(t)
	v := NewVerifier("lending-prod", f.server.URL)

	for i := 0; i < 5; i++ {
		if _, err := v.Verify(context.Background(), f.sign(t, "kid-unknown", validClaims(time.Now()))); err == nil {
			t.Fatal("expected unknown kid to be rejected")
		}
	}
	if got := f.requests.Load(); got != 1 {
		t.Fatalf("expected a single fetch for repeated unknown kids, got %d", got)
	}
}

func TestVerifyRequiresProjectID(t *testing.T) {
	v := NewVerifier("", "")
	if _, err := v.Verify(context.Background(), "token"); err == nil {
		t.Fatal("expected error without project id")
	}
}

func TestCacheMaxAge(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   time.Duration
		ok     bool
	}{
		{"google style", []string{"public, max-age=19845, must-revalidate, no-transform"}, 19845 * time.Second, true},
		{"quoted", []string{`max-age="60"`}, time.Minute, true},
		{"split headers", []string{"public", "MAX-AGE=30"}, 30 * time.Second, true},
		{"capped", []string{"max-age=9999999999"}, maxCertMaxAge, true},
		{"zero", []string{"max-age=0"}, 0, false},
		{"no-store", []string{"no-store, max-age=60"}, 0, false},
		{"missing", nil, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := cacheMaxAge(tc.values)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("cacheMaxAge(%q) = %v, %v; want %v, %v", tc.values, got, ok, tc.want, tc.ok)
			}
		})
	}
}
