// Package crypto seals tool-server credentials before they reach storage.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// Encryptor provides AES-256-GCM sealing of credential maps.
type Encryptor struct {
	gcm cipher.AEAD
}

// KeyFromSecret derives a 32-byte key from an arbitrary secret. An empty
// secret yields a nil key.
func KeyFromSecret(secret string) []byte {
	if secret == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// NewEncryptor creates an Encryptor with the given 32-byte key.
// If the key is empty, a no-op encryptor is returned that stores values as plaintext.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) == 0 {
		return &Encryptor{}, nil
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Encryptor{gcm: gcm}, nil
}

// Seal encodes cfg as JSON and encrypts it. An empty map seals to "".
func (e *Encryptor) Seal(cfg map[string]any) (string, error) {
	if len(cfg) == 0 {
		return "", nil
	}
	plain, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode auth config: %w", err)
	}
	if e.gcm == nil {
		return string(plain), nil
	}
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := e.gcm.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (e *Encryptor) Open(sealed string) (map[string]any, error) {
	if sealed == "" {
		return map[string]any{}, nil
	}
	plain := []byte(sealed)
	if e.gcm != nil {
		data, err := base64.StdEncoding.DecodeString(sealed)
		if err != nil {
			return nil, fmt.Errorf("decode base64: %w", err)
		}
		nonceSize := e.gcm.NonceSize()
		if len(data) < nonceSize {
			return nil, fmt.Errorf("ciphertext too short")
		}
		nonce, ct := data[:nonceSize], data[nonceSize:]
		plain, err = e.gcm.Open(nil, nonce, ct, nil)
		if err != nil {
			return nil, fmt.Errorf("decrypt: %w", err)
		}
	}
	out := map[string]any{}
	if err := json.Unmarshal(plain, &out); err != nil {
		return nil, fmt.Errorf("decode auth config: %w", err)
	}
	return out, nil
}
