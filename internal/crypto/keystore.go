package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

// ErrCiphertextTooShort is returned when a stored ciphertext is shorter
// than the GCM nonce it must carry.
var ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")

// Keystore encrypts and decrypts stored private keys with AES-256-GCM.
// The symmetric key is derived from the configured encryption key by
// SHA-256, so operators can supply a passphrase of any length.
type Keystore struct {
	key [32]byte
}

// NewKeystore derives a keystore from the configured encryption key.
func NewKeystore(encryptionKey string) *Keystore {
	return &Keystore{key: sha256.Sum256([]byte(encryptionKey))}
}

// Encrypt seals plaintext; the random nonce is prepended to the output.
func (k *Keystore) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(k.key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (k *Keystore) Decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(k.key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, ErrCiphertextTooShort
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
