// Package imagestore persists capture and defect photographs on disk and
// hands out stable references for them.
package imagestore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store writes photos under <root>/<process>/<step>/<uuid>.<ext>. The
// returned reference is the path relative to the root, which is what gets
// embedded into sessions and records.
type Store struct {
	root   string
	logger *slog.Logger
}

func NewStore(root string, logger *slog.Logger) (*Store, error) {
	err := os.MkdirAll(root, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create photo directory %s: %w", root, err)
	}

	return &Store{
		root:   root,
		logger: logger.With("module", "imagestore"),
	}, nil
}

// Save writes the photo and returns its reference.
func (s *Store) Save(ctx context.Context, process, stepKey string, data []byte) (string, error) {
	dir := filepath.Join(s.root, process, stepKey)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("failed to create photo subdirectory: %w", err)
	}

	ref := filepath.Join(process, stepKey, uuid.New().String()+extensionFor(data))

	err = os.WriteFile(filepath.Join(s.root, ref), data, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}

	s.logger.DebugContext(ctx, "Stored photo", "ref", ref, "bytes", len(data))

	return ref, nil
}

// Path resolves a reference back to an absolute file path.
func (s *Store) Path(ref string) string {
	return filepath.Join(s.root, ref)
}

func extensionFor(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	default:
		return ".jpg"
	}
}
