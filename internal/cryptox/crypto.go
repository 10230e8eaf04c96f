// Package cryptox holds the small amount of cryptography the client needs:
// deriving a sealing key from a configured secret and sealing/opening short
// values with AES-GCM.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"

	"github.com/dmitrijs2005/revsearch/internal/common"
	"golang.org/x/crypto/argon2"
)

// KeySize is the length of keys returned by DeriveKey (AES-256).
const KeySize = 32

var ErrOpen = errors.New("cannot open sealed value")

// DeriveKey stretches secret with salt using argon2id.
func DeriveKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, KeySize)
}

// Fingerprint returns the SHA-256 digest of data.
func Fingerprint(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// Seal encrypts plaintext with AES-GCM under key. additional is authenticated
// but not encrypted; binding it to the storage key prevents values from being
// swapped between entries. A fresh random nonce is generated per call.
func Seal(plaintext, key, additional []byte) (ciphertext, nonce []byte, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext = aesgcm.Seal(nil, nonce, plaintext, additional)

	return ciphertext, nonce, nil
}

// Open reverses Seal. Any authentication failure is reported as ErrOpen.
func Open(ciphertext, nonce, key, additional []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, ErrOpen
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, additional)
	if err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
