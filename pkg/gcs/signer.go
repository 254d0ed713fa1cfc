/**
 * @description
 * Signed read URLs for KYC images stored in Cloud Storage.
 *
 * @notes
 * - When service account JSON with a private key is supplied, URLs are signed locally.
 *   Otherwise the storage client signs through the IAM credentials API using the
 *   ambient service account.
 */

package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type serviceAccountJSON struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// Signer issues V4 signed GET URLs for one bucket.
type Signer struct {
	client   *storage.Client
	bucket   string
	accessID string
	key      []byte
	now      func() time.Time
}

// NewSigner creates a storage client for bucket. credentialsJSON may be empty.
func NewSigner(ctx context.Context, bucket string, credentialsJSON []byte, opts ...option.ClientOption) (*Signer, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	s := &Signer{bucket: bucket, now: time.Now}
	if len(credentialsJSON) > 0 {
		var key serviceAccountJSON
		if err := json.Unmarshal(credentialsJSON, &key); err != nil {
			return nil, fmt.Errorf("invalid service account json: %w", err)
		}
		if key.ClientEmail != "" && key.PrivateKey != "" {
			s.accessID = key.ClientEmail
			s.key = []byte(strings.ReplaceAll(key.PrivateKey, "\\n", "\n"))
		}
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	s.client = client
	return s, nil
}

// SignedReadURL returns a GET URL for objectPath valid for ttl.
func (s *Signer) SignedReadURL(_ context.Context, objectPath string, ttl time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: s.now().Add(ttl),
	}
	if s.accessID != "" {
		opts.GoogleAccessID = s.accessID
		opts.PrivateKey = s.key
	}
	return s.client.Bucket(s.bucket).SignedURL(strings.TrimLeft(objectPath, "/"), opts)
}

func (s *Signer) Close() error {
	return s.client.Close()
}
