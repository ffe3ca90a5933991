// Package credstore persists per-character credentials with the token
// fields encrypted at rest. The cipher is AES-256-GCM keyed through
// HKDF-SHA256 from a locally generated master secret that never leaves
// the machine.
package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

const (
	// secretLen is the master secret length in bytes.
	secretLen = 32

	// secretDirPerm and secretFilePerm keep the secret file owner-only.
	secretDirPerm  = fs.FileMode(0o700)
	secretFilePerm = fs.FileMode(0o600)

	// sealKeyLen is the derived AES key length (256 bits).
	sealKeyLen = 32
)

// sealInfo is the HKDF info string binding the derived key to this use.
var sealInfo = []byte("hangar-sync token sealing")

// LoadOrCreateSecret reads the master secret at path, generating and
// persisting a fresh one on first use. The secret is written atomically
// with owner-only permissions.
func LoadOrCreateSecret(path string) ([]byte, error) {
	secret, err := os.ReadFile(path)
	if err == nil {
		if len(secret) != secretLen {
			return nil, fmt.Errorf("secret file %s has wrong length %d, expected %d", path, len(secret), secretLen)
		}

		return secret, nil
	}

	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading secret file: %w", err)
	}

	secret = make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), secretDirPerm); err != nil {
		return nil, fmt.Errorf("creating secret directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, secret, secretFilePerm); err != nil {
		return nil, fmt.Errorf("writing secret file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("installing secret file: %w", err)
	}

	return secret, nil
}

// cipherBox seals and opens token strings. Sealed format is
// base64(12-byte IV || ciphertext+GCM tag).
type cipherBox struct {
	gcm cipher.AEAD
}

func newCipherBox(secret []byte) (*cipherBox, error) {
	if len(secret) != secretLen {
		return nil, fmt.Errorf("invalid secret length %d: expected %d bytes", len(secret), secretLen)
	}

	key, err := hkdfDeriveKey(secret, nil, sealInfo, sealKeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving sealing key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	// The cipher retains its own copy of the key schedule.
	for i := range key {
		key[i] = 0
	}

	return &cipherBox{gcm: gcm}, nil
}

// hkdfDeriveKey derives keyLen bytes using HKDF-SHA256 with the given IKM,
// salt, and info parameters.
func hkdfDeriveKey(ikm, salt, info []byte, keyLen int) ([]byte, error) {
	r := hkdf.New(sha256.New, ikm, salt, info)

	out := make([]byte, keyLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (b *cipherBox) seal(plaintext string) (string, error) {
	iv := make([]byte, b.gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating IV: %w", err)
	}

	ct := b.gcm.Seal(nil, iv, []byte(plaintext), nil)
	out := make([]byte, len(iv)+len(ct))
	copy(out, iv)
	copy(out[len(iv):], ct)

	return base64.StdEncoding.EncodeToString(out), nil
}

func (b *cipherBox) open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decoding sealed token: %w", err)
	}

	nonceSize := b.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("sealed token too short: %d bytes", len(data))
	}

	plain, err := b.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("opening sealed token: %w", err)
	}

	return string(plain), nil
}
