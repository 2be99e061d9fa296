package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	keyLength  = 32
	saltLength = 16
	nonceSize  = 16
	tagSize    = 16

	// Changing the scrypt cost breaks decryption of existing rows.
	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

var (
	ErrInvalidKey = errors.New("encryption key must be exactly 32 bytes")
	ErrDecrypt    = errors.New("failed to decrypt value")
)

// Encryptor seals short secrets for storage. Every value gets its own salt
// and the AES-256-GCM key is derived from the master key with scrypt.
// Output layout before base64: salt(16) | nonce(16) | tag(16) | ciphertext.
type Encryptor struct {
	masterKey []byte
}

func NewEncryptor(key string) (*Encryptor, error) {
	if len(key) != keyLength {
		return nil, ErrInvalidKey
	}
	return &Encryptor{masterKey: []byte(key)}, nil
}

// Encrypt returns the base64 sealed form of plaintext. The empty string
// encrypts to the empty string.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := e.cipherFor(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the tag after the ciphertext.
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	body, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	packed := make([]byte, 0, saltLength+nonceSize+tagSize+len(body))
	packed = append(packed, salt...)
	packed = append(packed, nonce...)
	packed = append(packed, tag...)
	packed = append(packed, body...)

	return base64.StdEncoding.EncodeToString(packed), nil
}

// Decrypt reverses Encrypt. Tampered input, a wrong key or a malformed
// payload all return an error wrapping ErrDecrypt.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	packed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrDecrypt, err)
	}
	if len(packed) < saltLength+nonceSize+tagSize {
		return "", fmt.Errorf("%w: payload too short", ErrDecrypt)
	}

	salt := packed[:saltLength]
	nonce := packed[saltLength : saltLength+nonceSize]
	tag := packed[saltLength+nonceSize : saltLength+nonceSize+tagSize]
	body := packed[saltLength+nonceSize+tagSize:]

	gcm, err := e.cipherFor(salt)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(body)+tagSize)
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}

func (e *Encryptor) cipherFor(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(e.masterKey, salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
