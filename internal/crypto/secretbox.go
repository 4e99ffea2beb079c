package crypto

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// Seal encrypts data using NaCl SecretBox (XSalsa20-Poly1305).
// Format: [nonce (24 bytes)][ciphertext + auth tag]
func Seal(data interface{}, secret *[32]byte) ([]byte, error) {
	var plaintext []byte
	switch v := data.(type) {
	case json.RawMessage:
		plaintext = []byte(v)
	case []byte:
		plaintext = v
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}
		plaintext = encoded
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	encrypted := secretbox.Seal(nil, plaintext, &nonce, secret)

	result := make([]byte, 24+len(encrypted))
	copy(result[0:24], nonce[:])
	copy(result[24:], encrypted)
	return result, nil
}

// Open decrypts data produced by Seal and unmarshals it into target.
func Open(sealed []byte, secret *[32]byte, target interface{}) error {
	if len(sealed) < 24 {
		return fmt.Errorf("sealed data too short")
	}

	var nonce [24]byte
	copy(nonce[:], sealed[0:24])

	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, secret)
	if !ok {
		return fmt.Errorf("decryption failed")
	}

	if raw, isRaw := target.(*json.RawMessage); isRaw {
		*raw = append((*raw)[:0], plaintext...)
		return nil
	}
	if err := json.Unmarshal(plaintext, target); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}
