package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/community-hub/backend/internal/config"
	"github.com/community-hub/backend/internal/storage"
)

type mockStorage struct{}

func (mockStorage) Put(_ context.Context, key string, _ io.Reader, _ string) (*storage.Object, error) {
	return &storage.Object{Key: key}, nil
}
func (mockStorage) Open(context.Context, string) (io.ReadCloser, error) { return nil, storage.ErrNotFound }
func (mockStorage) Remove(context.Context, string) error                { return nil }
func (mockStorage) Exists(context.Context, string) (bool, error)        { return false, nil }
func (mockStorage) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}

// ---------------------------------------------------------------------------
// Register / NewStorage
// ---------------------------------------------------------------------------

func TestRegister_AddsFactory(t *testing.T) {
	storage.Register("test-backend", func(_ *config.Config) (storage.Storage, error) {
		return mockStorage{}, nil
	})

	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "test-backend"

	s, err := storage.NewStorage(cfg)
	if err != nil {
		t.Fatalf("NewStorage() error: %v", err)
	}
	if s == nil {
		t.Fatal("NewStorage() returned nil")
	}
}

func TestNewStorage_UnknownBackend(t *testing.T) {
	for _, name := range []string{"completely-unknown-backend", ""} {
		cfg := &config.Config{}
		cfg.Storage.DefaultBackend = name
		if _, err := storage.NewStorage(cfg); err == nil {
			t.Errorf("NewStorage(%q) = nil error, want error", name)
		}
	}
}

// ---------------------------------------------------------------------------
// ResourceKey
// ---------------------------------------------------------------------------

func TestResourceKey(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"handbook.pdf", "tenants/org-1/resources/r-1/handbook.pdf"},
		{"../../etc/passwd", "tenants/org-1/resources/r-1/passwd"},
		{`C:\Users\me\notes.txt`, "tenants/org-1/resources/r-1/notes.txt"},
		{"..", "tenants/org-1/resources/r-1/file"},
		{"", "tenants/org-1/resources/r-1/file"},
	}
	for _, tt := range tests {
		if got := storage.ResourceKey("org-1", "r-1", tt.file); got != tt.want {
			t.Errorf("ResourceKey(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
	if !strings.HasPrefix(storage.ResourceKey("org-2", "r", "x"), "tenants/org-2/") {
		t.Error("ResourceKey should be prefixed by the tenant")
	}
}
