/**
 * @description
 * Firestore-backed DocumentStore. This is the production adapter: the console's
 * data already lives in Firestore and is shared with the mobile onboarding app.
 *
 * @dependencies
 * - cloud.google.com/go/firestore: Firestore client.
 * - google.golang.org/api/option: credentials wiring.
 * - google.golang.org/grpc/status, codes: NotFound detection.
 */

package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements DocumentStore on top of a Firestore client.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore opens a client for projectID. Credentials come from opts or,
// when none are given, Application Default Credentials.
func NewFirestoreStore(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) doc(path string) (*firestore.DocumentRef, error) {
	if _, _, err := SplitPath(path); err != nil {
		return nil, err
	}
	ref := s.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("invalid document path %q", path)
	}
	return ref, nil
}

func (s *FirestoreStore) Get(ctx context.Context, path string) (*Document, error) {
	ref, err := s.doc(path)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Document{ID: ref.ID, Path: path, Data: snap.Data()}, nil
}

func (s *FirestoreStore) GetAll(ctx context.Context, paths []string) ([]*Document, error) {
	refs := make([]*firestore.DocumentRef, 0, len(paths))
	for _, path := range paths {
		ref, err := s.doc(path)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, err
	}
	out := make([]*Document, len(paths))
	for i, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		out[i] = &Document{ID: refs[i].ID, Path: paths[i], Data: snap.Data()}
	}
	return out, nil
}

func (s *FirestoreStore) SetMerge(ctx context.Context, path string, fields map[string]any) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, fields, firestore.MergeAll)
	return err
}

// Commit runs the writes inside a transaction so they land together.
func (s *FirestoreStore) Commit(ctx context.Context, writes []Write) error {
	refs := make([]*firestore.DocumentRef, len(writes))
	for i, w := range writes {
		ref, err := s.doc(w.Path)
		if err != nil {
			return err
		}
		refs[i] = ref
	}
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for i, w := range writes {
			var err error
			if w.Merge {
				err = tx.Set(refs[i], w.Fields, firestore.MergeAll)
			} else {
				err = tx.Set(refs[i], w.Fields)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}, firestore.MaxAttempts(1))
}

func (s *FirestoreStore) List(ctx context.Context, collection string, opts ListOptions) ([]*Document, error) {
	coll := s.client.Collection(collection)
	if coll == nil {
		return nil, fmt.Errorf("invalid collection path %q", collection)
	}
	q := coll.Query
	if opts.WhereField != "" {
		q = q.Where(opts.WhereField, "==", opts.WhereValue)
	}
	if opts.OrderBy != "" {
		dir := firestore.Asc
		if opts.Descending {
			dir = firestore.Desc
		}
		q = q.OrderBy(opts.OrderBy, dir)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]*Document, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, &Document{
			ID:   snap.Ref.ID,
			Path: collection + "/" + snap.Ref.ID,
			Data: snap.Data(),
		})
	}
	return out, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
