package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/sirupsen/logrus"

	"github.com/goizzi/backoffice-service/internal/domain"
	"github.com/goizzi/backoffice-service/internal/store"
)

type loaderKey struct{}

// NameLoader batches display-name lookups for staff user ids within one request.
type NameLoader = dataloader.Loader[string, string]

// WithNameLoader attaches a request-scoped NameLoader to ctx.
func WithNameLoader(ctx context.Context, loader *NameLoader) context.Context {
	return context.WithValue(ctx, loaderKey{}, loader)
}

func nameLoaderFrom(ctx context.Context) *NameLoader {
	loader, _ := ctx.Value(loaderKey{}).(*NameLoader)
	return loader
}

// UserDirectory reads staff records from users/{uid}.
type UserDirectory struct {
	store  store.DocumentStore
	logger *logrus.Logger
}

func NewUserDirectory(s store.DocumentStore, logger *logrus.Logger) *UserDirectory {
	return &UserDirectory{store: s, logger: logger}
}

// NewNameLoader returns a batching loader backed by this directory.
func (d *UserDirectory) NewNameLoader() *NameLoader {
	return dataloader.NewBatchedLoader(d.batchDisplayNames, dataloader.WithWait[string, string](time.Millisecond))
}

func (d *UserDirectory) batchDisplayNames(ctx context.Context, uids []string) []*dataloader.Result[string] {
	results := make([]*dataloader.Result[string], len(uids))
	names, err := d.lookupDisplayNames(ctx, uids)
	for i, uid := range uids {
		if err != nil {
			results[i] = &dataloader.Result[string]{Error: err}
			continue
		}
		results[i] = &dataloader.Result[string]{Data: names[uid]}
	}
	return results
}

func (d *UserDirectory) lookupDisplayNames(ctx context.Context, uids []string) (map[string]string, error) {
	if d.store == nil {
		return nil, ErrNotConfigured
	}
	paths := make([]string, len(uids))
	for i, uid := range uids {
		paths[i] = store.UserPath(uid)
	}
	docs, err := d.store.GetAll(ctx, paths)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(uids))
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		if name := strings.TrimSpace(domain.StringValue(doc.Data, "displayName")); name != "" {
			names[uids[i]] = name
		}
	}
	return names, nil
}

// DisplayName returns the trimmed display name of uid, or "" when the user has none.
func (d *UserDirectory) DisplayName(ctx context.Context, uid string) (string, error) {
	if loader := nameLoaderFrom(ctx); loader != nil {
		return loader.Load(ctx, uid)()
	}
	names, err := d.lookupDisplayNames(ctx, []string{uid})
	if err != nil {
		return "", err
	}
	return names[uid], nil
}

// DisplayNames resolves several users at once. Users without a name are omitted.
func (d *UserDirectory) DisplayNames(ctx context.Context, uids []string) (map[string]string, error) {
	if len(uids) == 0 {
		return map[string]string{}, nil
	}
	loader := nameLoaderFrom(ctx)
	if loader == nil {
		return d.lookupDisplayNames(ctx, uids)
	}
	values, errs := loader.LoadMany(ctx, uids)()
	names := make(map[string]string, len(uids))
	for i, uid := range uids {
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		if i < len(values) && values[i] != "" {
			names[uid] = values[i]
		}
	}
	return names, nil
}

// ResolveActorName prefers the directory name of actorUserID, then fallback, then
// UnknownStaffName. Lookup failures are logged and fall through.
func (d *UserDirectory) ResolveActorName(ctx context.Context, actorUserID, fallback string) string {
	if uid := strings.TrimSpace(actorUserID); uid != "" {
		name, err := d.DisplayName(ctx, uid)
		if err != nil {
			d.logger.WithFields(logrus.Fields{"component": "users", "user_id": uid}).
				WithError(err).Warn("display name lookup failed")
		} else if name != "" {
			return SanitizeName(name)
		}
	}
	return SanitizeName(fallback)
}

// LoadStaff returns the session for uid when the user is active and holds a known role.
// A nil session with nil error means the user is not active staff.
func (d *UserDirectory) LoadStaff(ctx context.Context, uid string) (*domain.StaffSession, error) {
	if d.store == nil {
		return nil, ErrNotConfigured
	}
	doc, err := d.store.Get(ctx, store.UserPath(uid))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	role, ok := domain.ParseStaffRole(domain.StringValue(doc.Data, "role"))
	if !ok {
		return nil, nil
	}
	status, ok := domain.ParseStaffStatus(domain.StringValue(doc.Data, "status"))
	if !ok || status != domain.StatusActive {
		return nil, nil
	}
	return &domain.StaffSession{UID: uid, Role: role, Status: status}, nil
}
