package auth

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "token")
	s := NewFileStore(path)

	tok, err := s.Token()
	if err != nil {
		t.Fatalf("token before set: %v", err)
	}
	if tok != "" {
		t.Fatalf("expected empty token before set, got %q", tok)
	}

	if err := s.SetToken("abc.def.ghi"); err != nil {
		t.Fatalf("set token: %v", err)
	}

	tok, err = s.Token()
	if err != nil {
		t.Fatalf("token after set: %v", err)
	}
	if tok != "abc.def.ghi" {
		t.Fatalf("got %q, want %q", tok, "abc.def.ghi")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode %v, want 0600", perm)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	tok, err = s.Token()
	if err != nil {
		t.Fatalf("token after clear: %v", err)
	}
	if tok != "" {
		t.Fatalf("expected empty token after clear, got %q", tok)
	}

	// Clearing twice is not an error.
	if err := s.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}
