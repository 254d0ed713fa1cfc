/**
 * @description
 * Service holds the borrower and loan mutation logic of the back office. Each
 * operation validates its input, performs one read at most, then a single merge write
 * or atomic commit, and finally publishes a domain event on a best-effort basis.
 *
 * @dependencies
 * - internal/store: document store adapter.
 * - github.com/sirupsen/logrus: structured logging.
 * - github.com/google/uuid: note, payment and event ids.
 */

package app

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/goizzi/backoffice-service/internal/domain"
	"github.com/goizzi/backoffice-service/internal/store"
)

// EventPublisher delivers domain events to the event bus.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event domain.BackofficeEvent) error
}

// URLSigner issues time-limited read URLs for stored objects.
type URLSigner interface {
	SignedReadURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
}

// Options configures a Service. Store may be nil when credentials are absent; every
// operation then fails with ErrNotConfigured.
type Options struct {
	Store        store.DocumentStore
	Events       EventPublisher
	Signer       URLSigner
	Logger       *logrus.Logger
	SignedURLTTL time.Duration
	Clock        func() time.Time
	NewID        func() string
}

type Service struct {
	store        store.DocumentStore
	users        *UserDirectory
	events       EventPublisher
	signer       URLSigner
	logger       *logrus.Logger
	signedURLTTL time.Duration
	now          func() time.Time
	newID        func() string
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	ttl := opts.SignedURLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{
		store:        opts.Store,
		users:        NewUserDirectory(opts.Store, logger),
		events:       opts.Events,
		signer:       opts.Signer,
		logger:       logger,
		signedURLTTL: ttl,
		now:          clock,
		newID:        newID,
	}
}

// Configured reports whether a document store is available.
func (s *Service) Configured() bool {
	return s.store != nil
}

// Users exposes the staff directory used for author names.
func (s *Service) Users() *UserDirectory {
	return s.users
}

func (s *Service) timestamp() string {
	return domain.FormatTimestamp(s.now())
}

func (s *Service) requireStore() error {
	if s.store == nil {
		return ErrNotConfigured
	}
	return nil
}

// publish sends an event without failing the caller. The request context may be
// cancelled as soon as the response is written, so delivery gets its own deadline.
func (s *Service) publish(ctx context.Context, event domain.BackofficeEvent) {
	if s.events == nil {
		return
	}
	event.EventID = uuid.NewString()
	event.OccurredAt = s.now().UTC()

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.events.PublishEvent(pubCtx, event); err != nil {
		s.logger.WithFields(logrus.Fields{
			"component":  "events",
			"event_type": event.EventType,
			"event_id":   event.EventID,
		}).WithError(err).Warn("event publish failed")
	}
}
