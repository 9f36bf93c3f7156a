package securestore

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts values at rest. The label is authenticated but not stored.
type Sealer interface {
	Seal(plaintext, label []byte) ([]byte, error)
	Open(ciphertext, label []byte) ([]byte, error)
}

// AgeSealer seals values to a single X25519 identity.
type AgeSealer struct {
	identity *age.X25519Identity
}

// NewAgeSealer wraps an existing identity.
func NewAgeSealer(identity *age.X25519Identity) *AgeSealer {
	return &AgeSealer{identity: identity}
}

// LoadOrCreateAgeSealer reads an AGE-SECRET-KEY from path, generating and
// persisting a new one (mode 0600) when the file does not exist.
func LoadOrCreateAgeSealer(path string) (*AgeSealer, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		identity, err := age.ParseX25519Identity(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("failed to parse identity %s: %w", path, err)
		}
		return NewAgeSealer(identity), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read identity %s: %w", path, err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity: %w", err)
	}
	if err := writeKeyFile(path, []byte(identity.String()+"\n")); err != nil {
		return nil, err
	}
	return NewAgeSealer(identity), nil
}

// Seal prefixes the plaintext with the length-delimited label and encrypts
// the result to the identity's recipient.
func (s *AgeSealer) Seal(plaintext, label []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := age.Encrypt(&out, s.identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("failed to start encryption: %w", err)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(label)))
	for _, chunk := range [][]byte{header[:], label, plaintext} {
		if _, err := w.Write(chunk); err != nil {
			return nil, fmt.Errorf("failed to encrypt: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish encryption: %w", err)
	}
	return out.Bytes(), nil
}

func (s *AgeSealer) Open(ciphertext, label []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTampered, err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTampered, err)
	}
	if len(plain) < 4 {
		return nil, ErrTampered
	}
	n := int(binary.BigEndian.Uint32(plain[:4]))
	if len(plain) < 4+n || !bytes.Equal(plain[4:4+n], label) {
		return nil, ErrTampered
	}
	return plain[4+n:], nil
}

// ChaChaSealer seals values with XChaCha20-Poly1305 under a 32-byte key,
// using the label as associated data.
type ChaChaSealer struct {
	key []byte
}

// NewChaChaSealer validates the key size.
func NewChaChaSealer(key []byte) (*ChaChaSealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &ChaChaSealer{key: append([]byte(nil), key...)}, nil
}

// LoadOrCreateChaChaSealer reads a raw 32-byte key from path, creating one
// when the file does not exist.
func LoadOrCreateChaChaSealer(path string) (*ChaChaSealer, error) {
	key, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		key = make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate seal key: %w", err)
		}
		if err := writeKeyFile(path, key); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read seal key %s: %w", path, err)
	}
	return NewChaChaSealer(key)
}

// Seal output format: nonce(24) || ciphertext+tag
func (s *ChaChaSealer) Seal(plaintext, label []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, label), nil
}

func (s *ChaChaSealer) Open(ciphertext, label []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrTampered
	}
	nonce, body := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, label)
	if err != nil {
		return nil, ErrTampered
	}
	return plain, nil
}

func writeKeyFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create key file %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write key file %s: %w", path, err)
	}
	return f.Close()
}
