// Package cipher provides optional symmetric authenticated encryption for
// memory content at rest (spec.md §2, §6).
package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/mnemohq/mnemo/pkg/core"
)

// AEAD is the content cipher contract: encrypt(plaintext) -> bytes,
// decrypt(bytes) -> plaintext, both authenticated.
type AEAD interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// gcmCipher implements AEAD with AES-GCM (AES-128, -192 or -256, chosen by
// key length). No package in the retrieval
// corpus imports a third-party AEAD library; crypto/aes + crypto/cipher is
// the standard-library answer and needs no external dependency.
type gcmCipher struct {
	gcm cipher.AEAD
}

// NewFromHexKey builds an AEAD from a hex-encoded 16-, 24- or 32-byte key.
func NewFromHexKey(hexKey string) (AEAD, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, core.NewEngineError("NewFromHexKey", core.KindValidation, err)
	}
	return New(key)
}

// New builds an AEAD from a raw key. Only AES-128/192/256 key lengths
// (16/24/32 bytes) are accepted.
func New(key []byte) (AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, core.NewEngineError("New", core.KindValidation, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, core.NewEngineError("New", core.KindInternal, err)
	}
	return &gcmCipher{gcm: gcm}, nil
}

// Encrypt seals plaintext with a fresh random nonce, prepended to the
// returned ciphertext.
func (c *gcmCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, core.NewEngineError("Encrypt", core.KindInternal, err)
	}
	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext previously produced by Encrypt. A tampered or
// truncated ciphertext yields a DecryptionError; it never returns partial
// plaintext (spec.md §6: "MUST NOT return ciphertext to the user").
func (c *gcmCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, core.NewEngineError("Decrypt", core.KindDecryption, errShortCiphertext)
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, core.NewEngineError("Decrypt", core.KindDecryption, err)
	}
	return plaintext, nil
}

var errShortCiphertext = shortCiphertextError{}

type shortCiphertextError struct{}

func (shortCiphertextError) Error() string { return "ciphertext shorter than nonce" }
