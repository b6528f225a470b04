package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLocalStorage_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}

	key, err := s.Save(ctx, &SaveRequest{
		TenantID: "user-1",
		Filename: "Report.PDF",
		Reader:   strings.NewReader("content"),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(key, "user-1/") || !strings.HasSuffix(key, ".pdf") {
		t.Errorf("unexpected key %q", key)
	}

	rc, err := s.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "content" {
		t.Errorf("content = %q", data)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("second Delete() should be a no-op, got %v", err)
	}
	if _, err := s.Open(ctx, key); err == nil {
		t.Error("expected error opening deleted file")
	}
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}

	if _, err := s.Open(ctx, "../../etc/passwd"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
	if _, err := s.Save(ctx, &SaveRequest{TenantID: "../x", Filename: "a.txt", Reader: strings.NewReader("")}); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath for tenant, got %v", err)
	}
}
