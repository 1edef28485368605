package marker

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "marker.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("roomId", "4821"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get("roomId")
	if err != nil || !ok || v != "4821" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}

	if err := s.Set("roomId", "9999"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, _, _ = s.Get("roomId")
	if v != "9999" {
		t.Fatalf("overwrite lost, got %q", v)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := openTestStore(t)
	v, ok, err := s.Get("nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || v != "" {
		t.Fatalf("missing key returned %q, %v", v, ok)
	}
}

func TestDeleteMultipleKeys(t *testing.T) {
	s := openTestStore(t)
	s.Set("roomId", "4821")
	s.Set("isLive", "true")
	s.Set("other", "keep")

	if err := s.Delete("roomId", "isLive"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get("roomId"); ok {
		t.Fatal("roomId survived delete")
	}
	if _, ok, _ := s.Get("isLive"); ok {
		t.Fatal("isLive survived delete")
	}
	if v, ok, _ := s.Get("other"); !ok || v != "keep" {
		t.Fatal("unrelated key lost")
	}
}

func TestDeleteMissingKeysIsNoError(t *testing.T) {
	s := openTestStore(t)
	if err := s.Delete("ghost"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(); err != nil {
		t.Fatalf("Delete with no keys: %v", err)
	}
}

func TestReopenSeesPersistedMarkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marker.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Set("roomId", "4821")
	s.Set("isLive", "true")
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if v, ok, _ := s2.Get("roomId"); !ok || v != "4821" {
		t.Fatalf("roomId after reopen = %q, %v", v, ok)
	}
}
