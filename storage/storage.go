// Package storage archives the bytes of every accepted image so that later
// duplicate reviews and reprocessing do not depend on the origin server
// still serving the file.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Archiver stores accepted image bytes under a generated key and retrieves
// them again. Keys use forward slashes regardless of backend.
type Archiver interface {
	SaveImage(ctx context.Context, data []byte, slug, contentHash, contentType string) (string, error)
	ReadImage(ctx context.Context, key string) ([]byte, error)
	DeleteImage(ctx context.Context, key string) error
}

// Config contains filesystem archive configuration.
type Config struct {
	BasePath string // base directory for all stored files
}

// DefaultConfig returns default filesystem archive configuration.
func DefaultConfig() Config {
	return Config{
		BasePath: "./archive",
	}
}

// FSArchive stores images on the local filesystem. It is the development
// backend; production uses S3Archive.
type FSArchive struct {
	config Config
}

// NewFS creates a filesystem archive rooted at the configured base path.
func NewFS(config Config) (*FSArchive, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FSArchive{config: config}, nil
}

// SaveImage writes the image under images/YYYY/MM/slug-hash8.ext and returns
// the key relative to the base path. The content-hash fragment in the name
// makes the key collision-free without an existence probe.
func (a *FSArchive) SaveImage(_ context.Context, data []byte, slug, contentHash, contentType string) (string, error) {
	key := imageKey(slug, contentHash, contentType)

	fullPath := filepath.Join(a.config.BasePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	return key, nil
}

// ReadImage reads an archived image back by key.
func (a *FSArchive) ReadImage(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(a.config.BasePath, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

// DeleteImage removes an archived image. Deleting a missing key is not an
// error.
func (a *FSArchive) DeleteImage(_ context.Context, key string) error {
	err := os.Remove(filepath.Join(a.config.BasePath, filepath.FromSlash(key)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete image file: %w", err)
	}
	return nil
}

// imageKey builds the archive key: images/YYYY/MM/slug-hash8.ext. A missing
// slug falls back to "image"; a missing extension to .jpg.
func imageKey(slug, contentHash, contentType string) string {
	ext := extensionFromContentType(contentType)
	if ext == "" {
		ext = ".jpg"
	}
	if slug == "" {
		slug = "image"
	}
	hash8 := contentHash
	if len(hash8) > 8 {
		hash8 = hash8[:8]
	}

	now := time.Now()
	return path.Join("images",
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		slug+"-"+hash8+ext)
}

// extensionFromContentType returns the file extension for a content type.
func extensionFromContentType(contentType string) string {
	contentType = strings.ToLower(strings.Split(contentType, ";")[0])
	contentType = strings.TrimSpace(contentType)

	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ""
	}
}
