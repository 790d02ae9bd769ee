// Package database is the hub's credential store: API keys for downstream
// devices, their optional crypto keys and per-client message blacklists.
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrDuplicateKey is returned when adding a credential whose API key is
// already present.
var ErrDuplicateKey = errors.New("api key already registered")

// Credential is one authorized downstream client.
type Credential struct {
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	CryptoKey string    `json:"crypto_key,omitempty"` // empty means plaintext connection
	Blacklist Blacklist `json:"blacklist,omitzero"`
}

// Blacklist holds message/skill/intent types this client may not inject
// into the bus.
type Blacklist struct {
	Messages []string `json:"messages,omitempty"`
	Skills   []string `json:"skills,omitempty"`
	Intents  []string `json:"intents,omitempty"`
}

// BlocksMessage reports whether msgType is blacklisted for this client.
func (b Blacklist) BlocksMessage(msgType string) bool {
	for _, m := range b.Messages {
		if m == msgType {
			return true
		}
	}
	return false
}

// ClientDB is the lookup contract the connection controller depends on.
type ClientDB interface {
	Lookup(apiKey string) (*Credential, bool)
}

// JSONStore is a file-backed ClientDB. The file is a JSON array of
// credentials, loaded once and persisted on every mutation.
type JSONStore struct {
	path string

	mu      sync.RWMutex
	clients []Credential
}

func OpenJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &s.clients); err != nil {
		return nil, fmt.Errorf("error parsing client db %s: %w", path, err)
	}
	return s, nil
}

func (s *JSONStore) Lookup(apiKey string) (*Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.clients {
		if s.clients[i].APIKey == apiKey {
			c := s.clients[i]
			return &c, true
		}
	}
	return nil, false
}

func (s *JSONStore) Add(c Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.clients {
		if s.clients[i].APIKey == c.APIKey {
			return ErrDuplicateKey
		}
	}
	s.clients = append(s.clients, c)
	return s.persistLocked()
}

// Remove deletes the credential with the given API key. Removing an
// unknown key is a no-op.
func (s *JSONStore) Remove(apiKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.clients {
		if s.clients[i].APIKey == apiKey {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			return s.persistLocked()
		}
	}
	return nil
}

func (s *JSONStore) List() []Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Credential, len(s.clients))
	copy(out, s.clients)
	return out
}

func (s *JSONStore) persistLocked() error {
	data, err := json.MarshalIndent(s.clients, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// MemoryStore is an in-memory ClientDB for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	clients map[string]Credential
}

func NewMemoryStore(creds ...Credential) *MemoryStore {
	m := &MemoryStore{clients: make(map[string]Credential, len(creds))}
	for _, c := range creds {
		m.clients[c.APIKey] = c
	}
	return m
}

func (m *MemoryStore) Lookup(apiKey string) (*Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[apiKey]
	if !ok {
		return nil, false
	}
	return &c, true
}
