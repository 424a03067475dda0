// Package crypto seals persisted deployment state at rest with
// AES-256-GCM. Values are self-describing: "enc:" marks sealed payloads,
// "plain:" marks the keyless dev fallback, so a store can hold a mix while
// a key is being rolled out.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

const (
	encPrefix   = "enc:"
	plainPrefix = "plain:"
)

var warnOnce sync.Once

// keyFromEnv loads the 32-byte key from OPENPREVIEW_STATE_ENCRYPTION_KEY.
// Accepts hex (64 chars) or base64 encoded values. Returns nil when unset.
func keyFromEnv() []byte {
	raw := os.Getenv("OPENPREVIEW_STATE_ENCRYPTION_KEY")
	if raw == "" {
		return nil
	}
	if len(raw) == 64 {
		b, err := hex.DecodeString(raw)
		if err == nil && len(b) == 32 {
			return b
		}
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err == nil && len(b) == 32 {
		return b
	}
	b, err = base64.RawStdEncoding.DecodeString(raw)
	if err == nil && len(b) == 32 {
		return b
	}
	log.Printf("crypto: OPENPREVIEW_STATE_ENCRYPTION_KEY is set but is not a 32-byte hex or base64 value, storing state unencrypted")
	return nil
}

// Seal encrypts a state blob with the configured key. Without a key it
// degrades to base64 with a one-time warning, which keeps dev setups
// working against the same stores.
func Seal(plaintext string) (string, error) {
	key := keyFromEnv()
	if key == nil {
		warnOnce.Do(func() {
			log.Printf("crypto: no encryption key configured, persisting state as base64 (set OPENPREVIEW_STATE_ENCRYPTION_KEY in production)")
		})
		return plainPrefix + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
	}
	return SealWithKey(plaintext, key)
}

// SealWithKey encrypts a state blob with an explicit 32-byte key.
func SealWithKey(plaintext string, key []byte) (string, error) {
	if len(key) != 32 {
		return "", fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal, handling both enc: and plain: envelopes.
func Open(stored string) (string, error) {
	if strings.HasPrefix(stored, plainPrefix) {
		b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, plainPrefix))
		if err != nil {
			return "", fmt.Errorf("decode plain value: %w", err)
		}
		return string(b), nil
	}
	if !strings.HasPrefix(stored, encPrefix) {
		return "", fmt.Errorf("unknown state envelope (expected enc: or plain: prefix)")
	}
	key := keyFromEnv()
	if key == nil {
		return "", fmt.Errorf("OPENPREVIEW_STATE_ENCRYPTION_KEY not configured, cannot open enc: values")
	}
	return OpenWithKey(stored, key)
}

// OpenWithKey decrypts an enc: value with an explicit key.
func OpenWithKey(stored string, key []byte) (string, error) {
	if len(key) != 32 {
		return "", fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	if !strings.HasPrefix(stored, encPrefix) {
		return "", fmt.Errorf("expected enc: prefix")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encPrefix))
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
