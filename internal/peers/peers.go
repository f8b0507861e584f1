// Package peers maintains the persistent registry of known mobile peers a
// bridge can connect to.
package peers

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a named peer is not in the registry.
var ErrNotFound = errors.New("peers: peer not found")

// ErrNoDefault is returned by [Store.Resolve] when no peer can be selected
// without an explicit name.
var ErrNoDefault = errors.New("peers: no default peer configured")

// Peer is a single registry entry.
type Peer struct {
	// Name is the unique human-readable identifier (used in logs and the API).
	Name string `yaml:"name"`

	// Addr is the peer's UDP address, either "host" or "host:port". A bare
	// host gets the configured send port appended at connect time.
	Addr string `yaml:"addr"`
}

// file is the on-disk YAML shape of the registry.
type file struct {
	Default string `yaml:"default"`
	Peers   []Peer `yaml:"peers"`
}

// Store is a YAML-backed peer registry. All methods are safe for concurrent
// use. Mutations are written through to the backing file when a path is set.
type Store struct {
	mu   sync.Mutex
	path string
	def  string
	list []Peer
}

// NewStore creates a registry backed by the YAML file at path. A missing
// file is not an error; the registry starts empty and the file is created on
// the first mutation. An empty path keeps the registry in memory only.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peers: read %q: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("peers: parse %q: %w", path, err)
	}
	s.def = f.Default
	s.list = f.Peers
	return s, nil
}

// ReloadFrom replaces the registry contents with those of the YAML file at
// path and makes it the new backing file. A missing file yields an empty
// registry, mirroring [NewStore].
func (s *Store) ReloadFrom(path string) error {
	var f file
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("peers: read %q: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("peers: parse %q: %w", path, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
	s.def = f.Default
	s.list = f.Peers
	return nil
}

// List returns a copy of all registered peers.
func (s *Store) List() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.list)
}

// Add registers a peer, replacing any existing entry with the same name.
func (s *Store) Add(p Peer) error {
	if p.Name == "" {
		return errors.New("peers: name is required")
	}
	if p.Addr == "" {
		return errors.New("peers: addr is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.index(p.Name); i >= 0 {
		s.list[i] = p
	} else {
		s.list = append(s.list, p)
	}
	return s.save()
}

// Remove deletes the named peer. Removing the default peer clears the
// default.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(name)
	if i < 0 {
		return ErrNotFound
	}
	s.list = slices.Delete(s.list, i, i+1)
	if s.def == name {
		s.def = ""
	}
	return s.save()
}

// SetDefault marks the named peer as the one [Resolve] selects when no name
// is given.
func (s *Store) SetDefault(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index(name) < 0 {
		return ErrNotFound
	}
	s.def = name
	return s.save()
}

// Default returns the configured default peer, falling back to the only
// registered peer when exactly one exists.
func (s *Store) Default() (Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultLocked()
}

// Resolve returns the peer to connect to. An empty name selects the default
// peer; a name not in the registry is treated as a literal address.
func (s *Store) Resolve(name string) (Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return s.defaultLocked()
	}
	if i := s.index(name); i >= 0 {
		return s.list[i], nil
	}
	return Peer{Name: name, Addr: name}, nil
}

func (s *Store) defaultLocked() (Peer, error) {
	if s.def != "" {
		if i := s.index(s.def); i >= 0 {
			return s.list[i], nil
		}
		return Peer{}, fmt.Errorf("%w: default %q is not registered", ErrNotFound, s.def)
	}
	if len(s.list) == 1 {
		return s.list[0], nil
	}
	return Peer{}, ErrNoDefault
}

func (s *Store) index(name string) int {
	return slices.IndexFunc(s.list, func(p Peer) bool { return p.Name == name })
}

// save writes the registry back to the backing file. Callers must hold s.mu.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(file{Default: s.def, Peers: s.list})
	if err != nil {
		return fmt.Errorf("peers: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("peers: write %q: %w", s.path, err)
	}
	return nil
}
