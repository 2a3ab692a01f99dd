package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data", "settings.json"), "http://fallback.local")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func TestGetFallsBackWhenFileMissing(t *testing.T) {
	s := newTestStore(t)

	if got := s.APIURL(); got != "http://fallback.local" {
		t.Fatalf("APIURL() = %q; want fallback", got)
	}
}

func TestPutThenGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put(Settings{APIURL: "http://tracker.example"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if got := s.APIURL(); got != "http://tracker.example" {
		t.Fatalf("APIURL() = %q; want stored value", got)
	}
}

func TestGetFallsBackOnCorruptFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.path, []byte("{corrupt"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	if got := s.APIURL(); got != "http://fallback.local" {
		t.Fatalf("APIURL() = %q; want fallback for corrupt file", got)
	}
}

func TestEmptyStoredURLUsesFallback(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put(Settings{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if got := s.APIURL(); got != "http://fallback.local" {
		t.Fatalf("APIURL() = %q; want fallback for empty value", got)
	}
}
