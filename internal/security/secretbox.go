package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
)

// SecretBoxKeySize is the AES-256 key length in bytes (64 hex characters).
const SecretBoxKeySize = 32

// ErrSecretBoxOpen is returned when a ciphertext cannot be authenticated.
var ErrSecretBoxOpen = errors.New("secretbox: message authentication failed")

// SecretBox encrypts TOTP secrets at rest with AES-256-GCM. The key is held in a
// memguard enclave and only decrypted for the duration of a single operation.
// Ciphertexts are base64(nonce || sealed) and bound to an owner id via AAD.
type SecretBox struct {
	key *memguard.Enclave
}

// NewSecretBoxFromHex parses a 64-character hex key and seals it in an enclave.
func NewSecretBoxFromHex(hexKey string) (*SecretBox, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("secretbox: decoding key: %w", err)
	}
	if len(raw) != SecretBoxKeySize {
		return nil, fmt.Errorf("secretbox: invalid key size: got %d bytes, want %d", len(raw), SecretBoxKeySize)
	}
	// NewEnclave wipes raw.
	return &SecretBox{key: memguard.NewEnclave(raw)}, nil
}

// Seal encrypts plaintext for owner and returns the encoded ciphertext.
func (b *SecretBox) Seal(plaintext []byte, owner string) (string, error) {
	gcm, done, err := b.aead()
	if err != nil {
		return "", err
	}
	defer done()

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: generating nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, []byte(owner))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a ciphertext produced by Seal for the same owner.
func (b *SecretBox) Open(encoded, owner string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrSecretBoxOpen
	}
	gcm, done, err := b.aead()
	if err != nil {
		return nil, err
	}
	defer done()

	if len(data) < gcm.NonceSize() {
		return nil, ErrSecretBoxOpen
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, []byte(owner))
	if err != nil {
		return nil, ErrSecretBoxOpen
	}
	return plain, nil
}

func (b *SecretBox) aead() (cipher.AEAD, func(), error) {
	buf, err := b.key.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("secretbox: opening key enclave: %w", err)
	}
	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("secretbox: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("secretbox: creating GCM: %w", err)
	}
	return gcm, buf.Destroy, nil
}
