/**
 * @description
 * Verifies Firebase ID tokens against the X.509 certificates Google publishes for
 * the securetoken service account.
 *
 * @notes
 * - Firebase ID tokens are RS256 JWTs whose audience is the project id and whose
 *   issuer is https://securetoken.google.com/<project id>.
 * - The certificate endpoint answers with a JSON object of kid -> PEM certificate.
 *   The set is kept for as long as the response's Cache-Control max-age allows.
 * - A token signed by a kid missing from a live set triggers at most one refetch
 *   per minRefetchInterval.
 */

package firebaseauth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCertsURL serves the certificates that sign Firebase ID tokens.
const DefaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

const (
	issuerPrefix = "https://securetoken.google.com/"

	// Used when the endpoint sends no usable max-age.
	fallbackMaxAge      = 10 * time.Minute
	maxCertMaxAge       = 24 * time.Hour
	minRefetchInterval  = time.Minute
	maxCertResponseSize = 1 << 20
)

// certSet is one fetched generation of signing keys.
type certSet struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	expires   time.Time
}

func (s *certSet) live(now time.Time) bool {
	return s != nil && now.Before(s.expires)
}

// Verifier validates Firebase ID tokens for one project.
type Verifier struct {
	projectID  string
	certsURL   string
	httpClient *http.Client
	now        func() time.Time

	mu    sync.RWMutex
	certs *certSet

	// fetchMu collapses concurrent refetches into one request.
	fetchMu sync.Mutex
}

// NewVerifier returns a Verifier for projectID. An empty certsURL uses DefaultCertsURL.
func NewVerifier(projectID, certsURL string) *Verifier {
	certsURL = strings.TrimSpace(certsURL)
	if certsURL == "" {
		certsURL = DefaultCertsURL
	}
	return &Verifier{
		projectID:  strings.TrimSpace(projectID),
		certsURL:   certsURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
	}
}

// Verify checks the token signature and claims and returns the Firebase uid.
func (v *Verifier) Verify(ctx context.Context, idToken string) (string, error) {
	if v.projectID == "" {
		return "", errors.New("firebase project id is not configured")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(issuerPrefix+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithTimeFunc(v.now),
	)
	var claims jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(strings.TrimSpace(idToken), &claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("missing kid in token")
		}
		return v.publicKey(ctx, kid)
	})
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}

	// Firebase uids are at most 128 characters.
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" || len(sub) > 128 {
		return "", errors.New("subject claim missing or invalid")
	}
	return sub, nil
}

func (v *Verifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	now := v.now()
	v.mu.RLock()
	current := v.certs
	v.mu.RUnlock()
	if current.live(now) {
		if key, ok := current.keys[kid]; ok {
			return key, nil
		}
		if now.Sub(current.fetchedAt) < minRefetchInterval {
			return nil, fmt.Errorf("no certificate for kid %s", kid)
		}
	}

	current, err := v.refetch(ctx, current)
	if err != nil {
		return nil, err
	}
	if key, ok := current.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("no certificate for kid %s", kid)
}

// refetch replaces stale unless another caller already did while we waited.
func (v *Verifier) refetch(ctx context.Context, stale *certSet) (*certSet, error) {
	v.fetchMu.Lock()
	defer v.fetchMu.Unlock()

	v.mu.RLock()
	current := v.certs
	v.mu.RUnlock()
	if current != stale && current.live(v.now()) {
		return current, nil
	}

	fresh, err := v.fetchCerts(ctx)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.certs = fresh
	v.mu.Unlock()
	return fresh, nil
}

func (v *Verifier) fetchCerts(ctx context.Context) (*certSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signing certificates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("certificate endpoint returned %d", resp.StatusCode)
	}

	var pems map[string]string
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCertResponseSize)).Decode(&pems); err != nil {
		return nil, fmt.Errorf("decode signing certificates: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pem := range pems {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			continue
		}
		keys[kid] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("no usable RSA certificates in response")
	}

	now := v.now()
	maxAge, ok := cacheMaxAge(resp.Header.Values("Cache-Control"))
	if !ok {
		maxAge = fallbackMaxAge
	}
	return &certSet{keys: keys, fetchedAt: now, expires: now.Add(maxAge)}, nil
}

// cacheMaxAge reads max-age from Cache-Control, capped at maxCertMaxAge. no-store,
// no-cache and a zero max-age all report false.
func cacheMaxAge(values []string) (time.Duration, bool) {
	var maxAge time.Duration
	found := false
	for _, value := range values {
		for _, directive := range strings.Split(value, ",") {
			name, arg, _ := strings.Cut(strings.TrimSpace(directive), "=")
			switch strings.ToLower(strings.TrimSpace(name)) {
			case "no-store", "no-cache":
				return 0, false
			case "max-age":
				seconds, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(arg), `"`), 10, 64)
				if err != nil || seconds <= 0 {
					continue
				}
				maxAge = maxCertMaxAge
				if seconds < int64(maxCertMaxAge/time.Second) {
					maxAge = time.Duration(seconds) * time.Second
				}
				found = true
			}
		}
	}
	return maxAge, found
}
