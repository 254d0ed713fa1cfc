package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goizzi/backoffice-service/internal/domain"
	"github.com/goizzi/backoffice-service/internal/store"
)

// ErrSignerNotConfigured is returned when no storage bucket is configured.
var ErrSignerNotConfigured = errors.New("storage signer is not configured")

// SignedImage is a signed read URL for one stored KYC image.
type SignedImage struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// KycImagePaths returns the storage paths of a KYC record that live under the
// record's own prefix, with surrounding whitespace and leading slashes removed.
func KycImagePaths(borrowerID, kycID string, record domain.KycRecord) []string {
	prefix := fmt.Sprintf("borrowers/%s/kyc/%s/", borrowerID, kycID)
	var paths []string
	for _, ref := range record.AllStorageRefs() {
		p := strings.TrimLeft(strings.TrimSpace(ref), "/")
		if p == "" || !strings.HasPrefix(p, prefix) {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

// SignKycImages loads the KYC record and signs every image path that belongs to it.
func (s *Service) SignKycImages(ctx context.Context, borrowerID, kycID string) ([]SignedImage, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	if s.signer == nil {
		return nil, ErrSignerNotConfigured
	}
	borrowerID, kycID = trimmed(borrowerID), trimmed(kycID)
	if borrowerID == "" || kycID == "" {
		return nil, newValidationError("kycId", "Missing borrower or KYC id.")
	}

	doc, err := s.store.Get(ctx, store.KycPath(borrowerID, kycID))
	if err != nil {
		return nil, fmt.Errorf("load kyc %s/%s: %w", borrowerID, kycID, err)
	}
	paths := KycImagePaths(borrowerID, kycID, domain.KycRecordFromDocument(doc.ID, doc.Data))

	images := make([]SignedImage, 0, len(paths))
	for _, p := range paths {
		url, err := s.signer.SignedReadURL(ctx, p, s.signedURLTTL)
		if err != nil {
			return nil, fmt.Errorf("sign %s: %w", p, err)
		}
		images = append(images, SignedImage{Path: p, URL: url})
	}
	return images, nil
}
