package hive

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecrypt is returned for any ciphertext that fails to authenticate or
// parse. Callers treat it as a message decode failure, never as fatal.
var ErrDecrypt = errors.New("decryption failed")

const (
	cryptoKeySize   = 16 // AES-128
	cryptoNonceSize = 16
	cryptoTagSize   = 16
)

// cipherEnvelope is the encrypted wire form: hex-encoded AES-GCM fields.
type cipherEnvelope struct {
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag"`
	Nonce      string `json:"nonce"`
}

// NormalizeKey derives the fixed-size AES key from a credential's crypto
// key string: truncated or zero-padded to 16 bytes.
func NormalizeKey(key string) []byte {
	out := make([]byte, cryptoKeySize)
	copy(out, key)
	return out
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, cryptoNonceSize)
}

// EncryptAsJSON seals plaintext with AES-GCM and renders the ciphertext,
// auth tag and nonce as a hex-encoded JSON envelope.
func EncryptAsJSON(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, cryptoNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	// Seal appends the tag to the ciphertext; the wire form keeps them apart.
	split := len(sealed) - cryptoTagSize
	return json.Marshal(cipherEnvelope{
		Ciphertext: hex.EncodeToString(sealed[:split]),
		Tag:        hex.EncodeToString(sealed[split:]),
		Nonce:      hex.EncodeToString(nonce),
	})
}

// DecryptFromJSON opens a cipher envelope produced by EncryptAsJSON. Any
// malformed or unauthenticated input yields ErrDecrypt.
func DecryptFromJSON(key, payload []byte) ([]byte, error) {
	var env cipherEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext hex", ErrDecrypt)
	}
	tag, err := hex.DecodeString(env.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: bad tag hex", ErrDecrypt)
	}
	nonce, err := hex.DecodeString(env.Nonce)
	if err != nil || len(nonce) != cryptoNonceSize {
		return nil, fmt.Errorf("%w: bad nonce", ErrDecrypt)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// IsCiphertext reports whether a text frame looks like a cipher envelope.
// Plaintext frames from an expected-encrypted peer are tolerated (with a
// warning) for compatibility with misconfigured satellites.
func IsCiphertext(payload []byte) bool {
	return bytes.Contains(payload, []byte(`"ciphertext"`))
}
