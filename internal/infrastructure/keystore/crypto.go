package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	domainerrors "agent-wallet.backend/internal/domain/errors"
)

// Argon2id parameters. Changing them requires a new blob version: existing
// blobs record the parameters they were written with and always decrypt with
// those.
const (
	kdfMemoryKiB = 64 * 1024
	kdfTime      = 3
	kdfThreads   = 4
	kdfKeyLen    = 32

	saltLen  = 16
	nonceLen = 12
)

// KDFParams records how a blob's encryption key was derived
type KDFParams struct {
	Algorithm string `json:"algorithm"`
	MemoryKiB uint32 `json:"memoryKib"`
	Time      uint32 `json:"time"`
	Threads   uint8  `json:"threads"`
	KeyLen    uint32 `json:"keyLen"`
}

func defaultKDFParams() KDFParams {
	return KDFParams{
		Algorithm: "argon2id",
		MemoryKiB: kdfMemoryKiB,
		Time:      kdfTime,
		Threads:   kdfThreads,
		KeyLen:    kdfKeyLen,
	}
}

func deriveKey(password []byte, salt []byte, p KDFParams) ([]byte, error) {
	if p.Algorithm != "argon2id" {
		return nil, fmt.Errorf("%w: unknown kdf %q", domainerrors.ErrKeystoreVersion, p.Algorithm)
	}
	return argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen), nil
}

// encryptSecret seals plaintext under a password-derived key. Salt and nonce
// are fresh per call.
func encryptSecret(password, plaintext []byte) (ciphertextB64, saltB64, nonceB64 string, params KDFParams, err error) {
	params = defaultKDFParams()

	salt := make([]byte, saltLen)
	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return "", "", "", params, err
	}

	key, err := deriveKey(password, salt, params)
	if err != nil {
		return "", "", "", params, err
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", "", "", params, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceLen)
	if err != nil {
		return "", "", "", params, err
	}

	nonce := make([]byte, nonceLen)
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", "", params, err
	}

	ct := gcm.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ct),
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(nonce),
		params, nil
}

// decryptSecret opens a sealed blob. A wrong password surfaces as
// ErrInvalidMasterPassword, never as a raw AEAD failure.
func decryptSecret(password []byte, ciphertextB64, saltB64, nonceB64 string, params KDFParams) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("invalid ciphertext encoding: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("invalid salt encoding: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce encoding: %w", err)
	}

	key, err := deriveKey(password, salt, params)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(nonce))
	if err != nil {
		return nil, err
	}

	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, domainerrors.ErrInvalidMasterPassword
	}
	return pt, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
