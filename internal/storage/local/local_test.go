package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/community-hub/backend/internal/config"
	"github.com/community-hub/backend/internal/storage"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := New(&config.LocalStorageConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatal("New:", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNew_CreatesDirectory(t *testing.T) {
	sub := filepath.Join(t.TempDir(), "a", "b", "c")
	if _, err := New(&config.LocalStorageConfig{BasePath: sub}); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := os.Stat(sub); os.IsNotExist(err) {
		t.Error("New() did not create base directory")
	}
}

func TestNew_RequiresBasePath(t *testing.T) {
	if _, err := New(&config.LocalStorageConfig{}); err == nil {
		t.Error("New() = nil error, want error for empty base path")
	}
}

// ---------------------------------------------------------------------------
// Put / Open
// ---------------------------------------------------------------------------

func TestPutOpen(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	content := "hello, hub"
	obj, err := s.Put(ctx, "tenants/o/resources/r/hello.txt", strings.NewReader(content), "text/plain")
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if obj.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", obj.Size, len(content))
	}
	if len(obj.Checksum) != 64 {
		t.Errorf("Checksum len = %d, want 64", len(obj.Checksum))
	}
	if obj.ContentType != "text/plain" {
		t.Errorf("ContentType = %q, want text/plain", obj.ContentType)
	}

	rc, err := s.Open(ctx, "tenants/o/resources/r/hello.txt")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != content {
		t.Errorf("content = %q, want %q", got, content)
	}
}

func TestOpen_NotFound(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Open(context.Background(), "missing.txt"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Open() error = %v, want ErrNotFound", err)
	}
}

func TestPut_RejectsEscapingKey(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Put(context.Background(), "../outside.txt", strings.NewReader("x"), ""); err == nil {
		t.Error("Put() = nil error, want error for key outside base path")
	}
}

// ---------------------------------------------------------------------------
// Remove / Exists
// ---------------------------------------------------------------------------

func TestRemove(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	key := "tenants/o/resources/r/file.bin"

	if _, err := s.Put(ctx, key, strings.NewReader("data"), ""); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if ok, _ := s.Exists(ctx, key); !ok {
		t.Fatal("Exists() = false after Put")
	}
	if err := s.Remove(ctx, key); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if ok, _ := s.Exists(ctx, key); ok {
		t.Error("Exists() = true after Remove")
	}
	if _, err := os.Stat(filepath.Join(s.basePath, "tenants")); !os.IsNotExist(err) {
		t.Error("Remove() should prune empty parent directories")
	}
}

func TestRemove_Missing(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Remove(context.Background(), "never/existed.txt"); err != nil {
		t.Errorf("Remove() error = %v, want nil for missing object", err)
	}
}

func TestSignedURL_Empty(t *testing.T) {
	s := newTestStorage(t)
	u, err := s.SignedURL(context.Background(), "any", 0)
	if err != nil || u != "" {
		t.Errorf("SignedURL() = %q, %v; want empty, nil", u, err)
	}
}
