package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONStoreAddLookupRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.json")
	s, err := OpenJSONStore(path)
	require.NoError(t, err)

	cred := Credential{
		Name:      "kitchen-satellite",
		APIKey:    "abc123",
		CryptoKey: "sixteen-byte-key",
		Blacklist: Blacklist{Messages: []string{"system.shutdown"}},
	}
	require.NoError(t, s.Add(cred))
	assert.ErrorIs(t, s.Add(cred), ErrDuplicateKey)

	got, ok := s.Lookup("abc123")
	require.True(t, ok)
	assert.Equal(t, "kitchen-satellite", got.Name)
	assert.True(t, got.Blacklist.BlocksMessage("system.shutdown"))
	assert.False(t, got.Blacklist.BlocksMessage("speak"))

	_, ok = s.Lookup("nope")
	assert.False(t, ok)

	// persisted: reopen and find it
	s2, err := OpenJSONStore(path)
	require.NoError(t, err)
	_, ok = s2.Lookup("abc123")
	assert.True(t, ok)

	require.NoError(t, s2.Remove("abc123"))
	_, ok = s2.Lookup("abc123")
	assert.False(t, ok)
	// removing again is a no-op
	require.NoError(t, s2.Remove("abc123"))
}

func TestMemoryStoreLookup(t *testing.T) {
	m := NewMemoryStore(Credential{Name: "a", APIKey: "k1"})
	_, ok := m.Lookup("k1")
	assert.True(t, ok)
	_, ok = m.Lookup("k2")
	assert.False(t, ok)
}
