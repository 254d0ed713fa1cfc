/**
 * @description
 * Staff session handling. Staff sign in with a Firebase ID token; once the token is
 * verified and the users/{uid} record is an active staff member, the service mints a
 * signed session cookie valid for twelve hours. Resolved sessions (including failed
 * resolutions) are cached briefly so that each request does not hit the user store.
 * Signing out revokes the cookie's jti in the same cache until the cookie expires.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: HS256 session cookie signing and verification.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/goizzi/backoffice-service/internal/domain"
)

const (
	SessionCookieName      = "__session"
	DefaultSessionMaxAge   = 12 * time.Hour
	DefaultSessionCacheTTL = 60 * time.Second
	defaultSessionIssuer   = "backoffice-service"
	idTokenCachePrefix     = "idtoken:"
	sessionCookiePrefix    = "cookie:"
	revokedSessionPrefix   = "revoked:"
	sessionLeeway          = 30 * time.Second
)

// IDTokenVerifier verifies a Firebase ID token and returns its subject.
type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (string, error)
}

// SessionConfig controls cookie signing and caching.
type SessionConfig struct {
	Secret   string
	Issuer   string
	MaxAge   time.Duration
	CacheTTL time.Duration
}

type SessionService struct {
	users    *UserDirectory
	verifier IDTokenVerifier
	cache    SessionCache
	secret   []byte
	issuer   string
	maxAge   time.Duration
	cacheTTL time.Duration
	logger   *logrus.Logger
	now      func() time.Time
}

func NewSessionService(users *UserDirectory, verifier IDTokenVerifier, cache SessionCache, cfg SessionConfig, logger *logrus.Logger) *SessionService {
	if cache == nil {
		cache = NewMemorySessionCache()
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultSessionMaxAge
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultSessionCacheTTL
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		cfg.Issuer = defaultSessionIssuer
	}
	if logger == nil {
		logger = users.logger
	}
	return &SessionService{
		users:    users,
		verifier: verifier,
		cache:    cache,
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		maxAge:   cfg.MaxAge,
		cacheTTL: cfg.CacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// MaxAge is the lifetime of issued session cookies.
func (s *SessionService) MaxAge() time.Duration {
	return s.maxAge
}

func (s *SessionService) configured() bool {
	return s.users != nil && s.users.store != nil && s.verifier != nil && len(s.secret) > 0
}

// CreateSessionCookie exchanges a verified ID token for a session cookie value.
func (s *SessionService) CreateSessionCookie(ctx context.Context, idToken string) (string, error) {
	if !s.configured() {
		return "", ErrNotConfigured
	}
	uid, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	session, err := s.users.LoadStaff(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("load staff %s: %w", uid, err)
	}
	if session == nil {
		return "", ErrStaffNotFound
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   uid,
		Issuer:    s.issuer,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
	}
	cookie, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return cookie, nil
}

// Resolve returns the staff session for a cookie value, or nil when the cookie is
// missing, invalid, expired, revoked, or belongs to someone who is no longer active staff.
func (s *SessionService) Resolve(ctx context.Context, cookieValue string) *domain.StaffSession {
	cookieValue = strings.TrimSpace(cookieValue)
	if cookieValue == "" || !s.configured() {
		return nil
	}
	claims, err := s.parseCookie(cookieValue)
	if err != nil {
		s.logger.WithField("component", "session").WithError(err).Debug("session credential rejected")
		return nil
	}
	if s.revoked(ctx, claims.ID) {
		return nil
	}
	return s.resolveCached(ctx, sessionCookiePrefix+cookieValue, func() (string, error) {
		return claims.Subject, nil
	})
}

// ResolveIDToken resolves a bearer Firebase ID token directly.
func (s *SessionService) ResolveIDToken(ctx context.Context, idToken string) *domain.StaffSession {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" || !s.configured() {
		return nil
	}
	return s.resolveCached(ctx, idTokenCachePrefix+idToken, func() (string, error) {
		return s.verifier.Verify(ctx, idToken)
	})
}

// Invalidate revokes cookieValue until it would have expired and drops its cached
// resolution. Cookies that no longer verify need no revocation.
func (s *SessionService) Invalidate(ctx context.Context, cookieValue string) {
	cookieValue = strings.TrimSpace(cookieValue)
	if cookieValue == "" {
		return
	}
	log := s.logger.WithField("component", "session")

	if claims, err := s.parseCookie(cookieValue); err == nil {
		ttl := claims.ExpiresAt.Time.Sub(s.now()) + sessionLeeway
		if err := s.cache.Set(ctx, revokedSessionPrefix+claims.ID, nil, ttl); err != nil {
			log.WithError(err).WithField("uid", claims.Subject).Warn("session revocation write failed")
		}
	}
	if err := s.cache.Delete(ctx, sessionCookiePrefix+cookieValue); err != nil {
		log.WithError(err).Warn("session cache delete failed")
	}
}

// revoked reports whether jti was signed out. A cache read failure is logged and
// treated as not revoked so that a cache outage does not sign every staff member out.
func (s *SessionService) revoked(ctx context.Context, jti string) bool {
	_, found, err := s.cache.Get(ctx, revokedSessionPrefix+jti)
	if err != nil {
		s.logger.WithField("component", "session").WithError(err).Warn("session revocation read failed")
		return false
	}
	return found
}

func (s *SessionService) resolveCached(ctx context.Context, key string, subject func() (string, error)) *domain.StaffSession {
	log := s.logger.WithField("component", "session")

	cached, found, err := s.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("session cache read failed")
	} else if found {
		return cached
	}

	var session *domain.StaffSession
	uid, err := subject()
	if err != nil {
		log.WithError(err).Debug("session credential rejected")
	} else {
		session, err = s.users.LoadStaff(ctx, uid)
		if err != nil {
			log.WithError(err).WithField("uid", uid).Warn("staff lookup failed")
			session = nil
		}
	}

	if err := s.cache.Set(ctx, key, session, s.cacheTTL); err != nil {
		log.WithError(err).Warn("session cache write failed")
	}
	return session
}

func (s *SessionService) parseCookie(cookieValue string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(sessionLeeway),
	)
	token, err := parser.ParseWithClaims(cookieValue, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("session cookie rejected: %w", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("session cookie has no subject")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return nil, errors.New("session cookie has no id")
	}
	return claims, nil
}
