/**
 * @description
 * Cached branch directory. The branch list changes rarely, so it is loaded on a
 * schedule instead of per request. With Redis configured, one instance at a time
 * refreshes from the document store (guarded by a redislock) and publishes the
 * snapshot; other instances adopt the shared snapshot.
 *
 * @dependencies
 * - github.com/bsm/redislock: refresh lock.
 * - github.com/redis/go-redis/v9: shared snapshot.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/goizzi/backoffice-service/internal/domain"
	"github.com/goizzi/backoffice-service/internal/store"
)

const branchRefreshLockTTL = 30 * time.Second

type BranchDirectory struct {
	store  store.DocumentStore
	redis  redis.UniversalClient
	locker *redislock.Client
	prefix string
	logger *logrus.Logger

	mu          sync.RWMutex
	branches    []domain.Branch
	refreshedAt time.Time
}

// NewBranchDirectory builds a directory. client may be nil for a single-instance setup.
func NewBranchDirectory(s store.DocumentStore, client redis.UniversalClient, prefix string, logger *logrus.Logger) *BranchDirectory {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "backoffice"
	}
	d := &BranchDirectory{store: s, redis: client, prefix: prefix, logger: logger}
	if client != nil {
		d.locker = redislock.New(client)
	}
	return d
}

func (d *BranchDirectory) lockKey() string     { return d.prefix + ":lock:branches" }
func (d *BranchDirectory) snapshotKey() string { return d.prefix + ":branches" }

// Count returns the number of cached branches.
func (d *BranchDirectory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.branches)
}

// List returns a copy of the cached branches ordered by name.
func (d *BranchDirectory) List() []domain.Branch {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.Branch(nil), d.branches...)
}

// RefreshedAt is the time the cache was last replaced.
func (d *BranchDirectory) RefreshedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.refreshedAt
}

func (d *BranchDirectory) replace(branches []domain.Branch) {
	d.mu.Lock()
	d.branches = branches
	d.refreshedAt = time.Now()
	d.mu.Unlock()
}

// Refresh reloads the directory.
func (d *BranchDirectory) Refresh(ctx context.Context) error {
	if d.store == nil {
		return ErrNotConfigured
	}
	log := d.logger.WithField("component", "branches")

	if d.locker != nil {
		lock, err := d.locker.Obtain(ctx, d.lockKey(), branchRefreshLockTTL, nil)
		switch {
		case errors.Is(err, redislock.ErrNotObtained):
			log.Debug("refresh lock held elsewhere; adopting shared snapshot")
			return d.adoptSnapshot(ctx)
		case err != nil:
			log.WithError(err).Warn("refresh lock unavailable; refreshing without lock")
		default:
			defer func() {
				if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
					log.WithError(releaseErr).Warn("failed to release refresh lock")
				}
			}()
		}
	}

	docs, err := d.store.List(ctx, store.BranchesCollection, store.ListOptions{})
	if err != nil {
		return err
	}
	branches := make([]domain.Branch, 0, len(docs))
	for _, doc := range docs {
		branches = append(branches, domain.BranchFromDocument(doc.ID, doc.Data))
	}
	sort.SliceStable(branches, func(i, j int) bool {
		return strings.ToLower(branches[i].Name) < strings.ToLower(branches[j].Name)
	})
	d.replace(branches)

	if d.redis != nil {
		raw, err := json.Marshal(branches)
		if err == nil {
			err = d.redis.Set(ctx, d.snapshotKey(), raw, 0).Err()
		}
		if err != nil {
			log.WithError(err).Warn("failed to publish branch snapshot")
		}
	}
	log.WithField("count", len(branches)).Info("branch directory refreshed")
	return nil
}

func (d *BranchDirectory) adoptSnapshot(ctx context.Context) error {
	raw, err := d.redis.Get(ctx, d.snapshotKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	var branches []domain.Branch
	if err := json.Unmarshal(raw, &branches); err != nil {
		return err
	}
	d.replace(branches)
	return nil
}
