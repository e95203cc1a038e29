package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"marketdesk/internal/hub"
	"marketdesk/internal/model"
)

// Compile-time check that the store satisfies the hub's session contract.
var _ hub.SessionStore = (*SQLiteStore)(nil)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, ok, err := s.LoadSession(ctx); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	in := model.Credentials{AccessToken: "tok-1", Email: "seller@example.com", Expiry: exp}
	if err := s.SaveSession(ctx, in); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	got, ok, err := s.LoadSession(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadSession: ok=%v err=%v", ok, err)
	}
	if got.AccessToken != "tok-1" || got.Email != "seller@example.com" || got.TokenType != "Bearer" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.Expiry.Equal(exp) {
		t.Fatalf("expiry = %v; want %v", got.Expiry, exp)
	}

	// Saving again replaces the single row.
	if err := s.SaveSession(ctx, model.Credentials{AccessToken: "tok-2", TokenType: "Bearer"}); err != nil {
		t.Fatalf("SaveSession replace: %v", err)
	}
	got, _, _ = s.LoadSession(ctx)
	if got.AccessToken != "tok-2" || got.Email != "" || !got.Expiry.IsZero() {
		t.Fatalf("session not replaced: %+v", got)
	}
}

func TestSaveSessionRejectsEmptyToken(t *testing.T) {
	s := testStore(t)
	if err := s.SaveSession(context.Background(), model.Credentials{Email: "x@y.z"}); !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClearSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession on empty store: %v", err)
	}
	if err := s.SaveSession(ctx, model.Credentials{AccessToken: "tok"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := s.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if _, ok, _ := s.LoadSession(ctx); ok {
		t.Fatal("session survived ClearSession")
	}
}

func TestReopenKeepsSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "marketdesk.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()
	if err := s.SaveSession(ctx, model.Credentials{AccessToken: "persisted"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	s.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, ok, err := s2.LoadSession(ctx)
	if err != nil || !ok || got.AccessToken != "persisted" {
		t.Fatalf("after reopen: %+v ok=%v err=%v", got, ok, err)
	}
	v, err := s2.SchemaVersion(ctx)
	if err != nil || v != schemaVersion {
		t.Fatalf("SchemaVersion = %d, %v", v, err)
	}
}
