// Package media stores uploaded images (payment proofs, transfer receipts,
// QRIS codes) under one root directory. Records carry the relative ref.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	KindProof    = "proofs"
	KindFailed   = "failed"
	KindTransfer = "transfers"
	KindQRIS     = "qris"
	KindProduct  = "products"
)

var ErrBadRef = errors.New("invalid media reference")

var extByMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ExtFor returns the file extension for an image MIME type, or "" when the
// type is not an accepted image.
func ExtFor(mime string) string { return extByMIME[strings.ToLower(strings.TrimSpace(mime))] }

type Store struct{ Root string }

func NewStore(root string) *Store { return &Store{Root: root} }

// Save writes data as a new file under kind and returns "kind/<uuid><ext>".
func (s *Store) Save(kind string, data []byte, mime string) (string, error) {
	ext := ExtFor(mime)
	if ext == "" {
		return "", fmt.Errorf("unsupported media type %q", mime)
	}
	dir := filepath.Join(s.Root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", err
	}
	return kind + "/" + name, nil
}

// Path resolves ref to a file path inside Root.
func (s *Store) Path(ref string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimPrefix(ref, "/"))
	if clean == "/" || strings.Contains(ref, "..") {
		return "", ErrBadRef
	}
	return filepath.Join(s.Root, clean), nil
}

func (s *Store) Remove(ref string) error {
	p, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
