package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
)

const blobVersion = 1

// keyBlob is the on-disk format, one JSON file per wallet.
type keyBlob struct {
	Version    int       `json:"version"`
	WalletID   string    `json:"walletId"`
	Chain      string    `json:"chain"`
	PublicKey  string    `json:"publicKey"`
	Cipher     string    `json:"cipher"`
	Ciphertext string    `json:"ciphertext"`
	Salt       string    `json:"salt"`
	Nonce      string    `json:"nonce"`
	KDF        KDFParams `json:"kdf"`
	CreatedAt  time.Time `json:"createdAt"`
}

// KeyHandle holds a decrypted private key in guarded memory. Callers must
// Release it as soon as signing is done.
type KeyHandle struct {
	buf   *memguard.LockedBuffer
	chain entities.ChainType
}

// Bytes exposes the raw key material. Valid only until Release.
func (h *KeyHandle) Bytes() []byte {
	return h.buf.Bytes()
}

// Chain returns the chain family the key belongs to.
func (h *KeyHandle) Chain() entities.ChainType {
	return h.chain
}

// Release wipes and unlocks the guarded buffer. Safe to call twice.
func (h *KeyHandle) Release() {
	h.buf.Destroy()
}

// Keystore stores encrypted wallet keys as files under a directory.
type Keystore struct {
	dir      string
	password *memguard.Enclave
	mu       sync.Mutex
}

// New creates a keystore rooted at dir. The master password is sealed into
// an enclave immediately; the caller should drop its own copy.
func New(dir string, masterPassword []byte) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create keystore dir: %w", err)
	}
	return &Keystore{
		dir:      dir,
		password: memguard.NewEnclave(masterPassword),
	}, nil
}

func (k *Keystore) blobPath(walletID uuid.UUID) string {
	return filepath.Join(k.dir, walletID.String()+".json")
}

// GenerateKeyPair creates a key for the chain, encrypts it under the master
// password and persists the blob. Returns the public identifier (base58
// pubkey for Solana, 0x address for EVM).
func (k *Keystore) GenerateKeyPair(walletID uuid.UUID, chain entities.ChainType) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, err := os.Stat(k.blobPath(walletID)); err == nil {
		return "", domainerrors.ErrAlreadyExists
	}

	var publicKey string
	var secret []byte
	switch chain {
	case entities.ChainSolana:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return "", fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		publicKey = base58.Encode(pub)
		secret = priv
	case entities.ChainEthereum:
		priv, err := ethcrypto.GenerateKey()
		if err != nil {
			return "", fmt.Errorf("failed to generate secp256k1 key: %w", err)
		}
		publicKey = ethcrypto.PubkeyToAddress(priv.PublicKey).Hex()
		secret = ethcrypto.FromECDSA(priv)
	default:
		return "", domainerrors.ErrUnsupportedChain
	}
	defer zero(secret)

	if err := k.writeBlob(walletID, chain, publicKey, secret); err != nil {
		return "", err
	}

	return publicKey, nil
}

func (k *Keystore) writeBlob(walletID uuid.UUID, chain entities.ChainType, publicKey string, secret []byte) error {
	pw, err := k.password.Open()
	if err != nil {
		return fmt.Errorf("failed to open password enclave: %w", err)
	}
	defer pw.Destroy()

	ct, salt, nonce, params, err := encryptSecret(pw.Bytes(), secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt key: %w", err)
	}

	blob := keyBlob{
		Version:    blobVersion,
		WalletID:   walletID.String(),
		Chain:      string(chain),
		PublicKey:  publicKey,
		Cipher:     "aes-256-gcm",
		Ciphertext: ct,
		Salt:       salt,
		Nonce:      nonce,
		KDF:        params,
		CreatedAt:  time.Now().UTC(),
	}

	data, err := json.MarshalIndent(&blob, "", "  ")
	if err != nil {
		return err
	}

	// Write-then-rename so a crash mid-write never leaves a torn blob.
	tmp := k.blobPath(walletID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write key blob: %w", err)
	}
	if err := os.Rename(tmp, k.blobPath(walletID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize key blob: %w", err)
	}
	return nil
}

// DecryptPrivateKey loads and decrypts the wallet's key into a guarded
// handle. The caller owns the handle and must Release it.
func (k *Keystore) DecryptPrivateKey(walletID uuid.UUID) (*KeyHandle, error) {
	blob, err := k.readBlob(walletID)
	if err != nil {
		return nil, err
	}

	pw, err := k.password.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open password enclave: %w", err)
	}
	defer pw.Destroy()

	secret, err := decryptSecret(pw.Bytes(), blob.Ciphertext, blob.Salt, blob.Nonce, blob.KDF)
	if err != nil {
		return nil, err
	}

	// NewBufferFromBytes wipes the source slice.
	return &KeyHandle{
		buf:   memguard.NewBufferFromBytes(secret),
		chain: entities.ChainType(blob.Chain),
	}, nil
}

// PublicKey returns the stored public identifier without decrypting.
func (k *Keystore) PublicKey(walletID uuid.UUID) (string, error) {
	blob, err := k.readBlob(walletID)
	if err != nil {
		return "", err
	}
	return blob.PublicKey, nil
}

// HasKey reports whether a blob exists for the wallet.
func (k *Keystore) HasKey(walletID uuid.UUID) bool {
	_, err := os.Stat(k.blobPath(walletID))
	return err == nil
}

// DeleteKey removes the wallet's blob. Used on wallet termination.
func (k *Keystore) DeleteKey(walletID uuid.UUID) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := os.Remove(k.blobPath(walletID)); err != nil {
		if os.IsNotExist(err) {
			return domainerrors.ErrKeyNotFound
		}
		return err
	}
	return nil
}

// VerifyMasterPassword decrypts one existing blob to prove the password is
// right. With no blobs on disk there is nothing to verify.
func (k *Keystore) VerifyMasterPassword() error {
	entries, err := os.ReadDir(k.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id, err := uuid.Parse(e.Name()[:len(e.Name())-len(".json")])
		if err != nil {
			continue
		}
		handle, err := k.DecryptPrivateKey(id)
		if err != nil {
			return err
		}
		handle.Release()
		return nil
	}
	return nil
}

func (k *Keystore) readBlob(walletID uuid.UUID) (*keyBlob, error) {
	data, err := os.ReadFile(k.blobPath(walletID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domainerrors.ErrKeyNotFound
		}
		return nil, err
	}

	var blob keyBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("corrupt key blob for %s: %w", walletID, err)
	}
	if blob.Version != blobVersion {
		return nil, fmt.Errorf("%w: blob version %d", domainerrors.ErrKeystoreVersion, blob.Version)
	}
	return &blob, nil
}
