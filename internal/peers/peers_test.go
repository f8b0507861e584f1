package peers_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/budbridge-io/budbridge/internal/peers"
)

func TestStore_MissingFileStartsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "peers.yaml")

	s, err := peers.NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if got := s.List(); len(got) != 0 {
		t.Errorf("expected empty registry, got %d peers", len(got))
	}
	if _, err := s.Default(); !errors.Is(err, peers.ErrNoDefault) {
		t.Errorf("Default on empty registry = %v, want ErrNoDefault", err)
	}
}

func TestStore_AddPersistsAndReloads(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "peers.yaml")

	s, err := peers.NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Add(peers.Peer{Name: "phone", Addr: "192.168.1.20"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(peers.Peer{Name: "tablet", Addr: "192.168.1.30:4811"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.SetDefault("tablet"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}

	reloaded, err := peers.NewStore(path)
	if err != nil {
		t.Fatalf("NewStore (reload): %v", err)
	}
	if got := reloaded.List(); len(got) != 2 {
		t.Fatalf("reloaded registry has %d peers, want 2", len(got))
	}
	def, err := reloaded.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if def.Name != "tablet" {
		t.Errorf("default peer = %q, want tablet", def.Name)
	}
}

func TestStore_AddReplacesExistingName(t *testing.T) {
	t.Parallel()
	s, err := peers.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Add(peers.Peer{Name: "phone", Addr: "192.168.1.20"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(peers.Peer{Name: "phone", Addr: "10.0.0.5"}); err != nil {
		t.Fatalf("Add (replace): %v", err)
	}

	got := s.List()
	if len(got) != 1 {
		t.Fatalf("registry has %d peers, want 1", len(got))
	}
	if got[0].Addr != "10.0.0.5" {
		t.Errorf("addr = %q, want the replacement 10.0.0.5", got[0].Addr)
	}
}

func TestStore_SinglePeerIsImplicitDefault(t *testing.T) {
	t.Parallel()
	s, err := peers.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Add(peers.Peer{Name: "phone", Addr: "192.168.1.20"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	def, err := s.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if def.Name != "phone" {
		t.Errorf("implicit default = %q, want phone", def.Name)
	}
}

func TestStore_RemoveClearsDefault(t *testing.T) {
	t.Parallel()
	s, err := peers.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, p := range []peers.Peer{
		{Name: "phone", Addr: "192.168.1.20"},
		{Name: "tablet", Addr: "192.168.1.30"},
	} {
		if err := s.Add(p); err != nil {
			t.Fatalf("Add %s: %v", p.Name, err)
		}
	}
	if err := s.SetDefault("phone"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	if err := s.Remove("phone"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	def, err := s.Default()
	if err != nil {
		t.Fatalf("Default after remove: %v", err)
	}
	// One peer left, so it becomes the implicit default.
	if def.Name != "tablet" {
		t.Errorf("default after remove = %q, want tablet", def.Name)
	}

	if err := s.Remove("phone"); !errors.Is(err, peers.ErrNotFound) {
		t.Errorf("Remove of missing peer = %v, want ErrNotFound", err)
	}
}

func TestStore_ResolveLiteralAddress(t *testing.T) {
	t.Parallel()
	s, err := peers.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	p, err := s.Resolve("203.0.113.7:4811")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Addr != "203.0.113.7:4811" {
		t.Errorf("resolved addr = %q, want the literal address back", p.Addr)
	}
}

func TestStore_ReloadFromSwapsContents(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.yaml")
	newPath := filepath.Join(dir, "new.yaml")

	s, err := peers.NewStore(oldPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Add(peers.Peer{Name: "phone", Addr: "192.168.1.20"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := os.WriteFile(newPath, []byte("default: tablet\npeers:\n  - name: tablet\n    addr: 10.0.0.5\n"), 0o644); err != nil {
		t.Fatalf("write new registry: %v", err)
	}
	if err := s.ReloadFrom(newPath); err != nil {
		t.Fatalf("ReloadFrom: %v", err)
	}

	def, err := s.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if def.Name != "tablet" || def.Addr != "10.0.0.5" {
		t.Errorf("default after reload = %+v, want tablet at 10.0.0.5", def)
	}
	if got := s.List(); len(got) != 1 {
		t.Errorf("registry has %d peers after reload, want 1", len(got))
	}
}

func TestStore_RejectsUnreadableFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "peers.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := peers.NewStore(path); err == nil {
		t.Fatal("expected parse error for malformed registry, got nil")
	}
}
