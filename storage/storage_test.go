package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestFSArchiveRoundtrip(t *testing.T) {
	archive, err := NewFS(Config{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}

	ctx := context.Background()
	data := []byte("not really a jpeg but good enough")

	key, err := archive.SaveImage(ctx, data, "sunset-beach", "a1b2c3d4e5f6", "image/jpeg")
	if err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}

	now := time.Now()
	wantPrefix := fmt.Sprintf("images/%04d/%02d/", now.Year(), int(now.Month()))
	if !strings.HasPrefix(key, wantPrefix) {
		t.Errorf("key %q missing date prefix %q", key, wantPrefix)
	}
	if !strings.HasSuffix(key, "sunset-beach-a1b2c3d4.jpg") {
		t.Errorf("key %q should end with slug-hash8.jpg", key)
	}

	got, err := archive.ReadImage(ctx, key)
	if err != nil {
		t.Fatalf("ReadImage failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("read data does not match written data")
	}

	if err := archive.DeleteImage(ctx, key); err != nil {
		t.Fatalf("DeleteImage failed: %v", err)
	}
	if _, err := archive.ReadImage(ctx, key); err == nil {
		t.Error("expected error reading deleted image")
	}
	// Deleting again is not an error.
	if err := archive.DeleteImage(ctx, key); err != nil {
		t.Errorf("second delete should be a no-op: %v", err)
	}
}

func TestImageKeyDefaults(t *testing.T) {
	key := imageKey("", "abcdef0123456789", "application/octet-stream")
	if !strings.HasSuffix(key, "image-abcdef01.jpg") {
		t.Errorf("defaults not applied: %q", key)
	}

	short := imageKey("pic", "ab", "image/png")
	if !strings.HasSuffix(short, "pic-ab.png") {
		t.Errorf("short hash should pass through: %q", short)
	}
}

func TestNewS3Validation(t *testing.T) {
	ctx := context.Background()

	valid := S3Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		Bucket:          "test-bucket",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
	}
	if _, err := NewS3(ctx, valid); err != nil {
		t.Fatalf("Failed to create S3 archive: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*S3Config)
	}{
		{"missing bucket", func(c *S3Config) { c.Bucket = "" }},
		{"missing region", func(c *S3Config) { c.Region = "" }},
		{"missing credentials", func(c *S3Config) { c.AccessKeyID = ""; c.SecretAccessKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if _, err := NewS3(ctx, cfg); err == nil {
				t.Fatal("Expected error, got nil")
			}
		})
	}
}

func TestExtensionFromContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        string
	}{
		{"jpeg", "image/jpeg", ".jpg"},
		{"jpg", "image/jpg", ".jpg"},
		{"png", "image/png", ".png"},
		{"gif", "image/gif", ".gif"},
		{"webp", "image/webp", ".webp"},
		{"bmp", "image/bmp", ".bmp"},
		{"tiff", "image/tiff", ".tiff"},
		{"with charset", "image/jpeg; charset=utf-8", ".jpg"},
		{"unknown", "image/unknown", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extensionFromContentType(tt.contentType)
			if got != tt.want {
				t.Errorf("extensionFromContentType(%q) = %q, want %q", tt.contentType, got, tt.want)
			}
		})
	}
}
