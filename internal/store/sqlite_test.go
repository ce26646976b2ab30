package store

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestSQLite_PutGet(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"), testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.Get("conversation"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	if err := s.Put("conversation", []byte(`[]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := s.Get("conversation")
	if err != nil || !ok {
		t.Fatalf("get after put: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(v, []byte(`[]`)) {
		t.Fatalf("unexpected value: %s", v)
	}
}

func TestSQLite_Overwrite(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"), testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if err := s.Put("k", []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("k", []byte("two")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, _, _ := s.Get("k")
	if string(v) != "two" {
		t.Fatalf("last write should win, got %s", v)
	}
}

func TestMemory_Isolated(t *testing.T) {
	m := NewMemory()
	payload := []byte(`{"a":1}`)
	if err := m.Put("k", payload); err != nil {
		t.Fatalf("put: %v", err)
	}
	payload[0] = 'X' // caller mutation must not leak into the store

	v, ok, _ := m.Get("k")
	if !ok || string(v) != `{"a":1}` {
		t.Fatalf("stored value corrupted: %s", v)
	}

	v[0] = 'Y' // reader mutation must not leak either
	v2, _, _ := m.Get("k")
	if string(v2) != `{"a":1}` {
		t.Fatalf("stored value corrupted by reader: %s", v2)
	}
}
