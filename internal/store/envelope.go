package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// sealVersion is the newest sealed backup format written by Seal.
const sealVersion = 1

// Upper bounds on the scrypt cost a sealed backup may request. Open reads the
// cost from the blob itself, so it is checked before any key is derived.
const (
	maxScryptN  = 1 << 20
	maxScryptRP = 64
)

var (
	// ErrWrongPassphrase is returned by Open when the passphrase is wrong or the
	// backup was modified.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted backup")

	// ErrExcessiveCost is returned when scrypt parameters exceed the allowed bounds.
	ErrExcessiveCost = errors.New("scrypt parameters exceed allowed cost")
)

// ScryptParams are the key-derivation costs recorded in every sealed backup.
type ScryptParams struct {
	N, R, P int
}

// DefaultScryptParams is used by Seal.
var DefaultScryptParams = ScryptParams{N: 1 << 15, R: 8, P: 1}

func (p ScryptParams) check() error {
	if p.N < 2 || p.N&(p.N-1) != 0 || p.R < 1 || p.P < 1 {
		return fmt.Errorf("invalid scrypt parameters N=%d r=%d p=%d", p.N, p.R, p.P)
	}
	if p.N > maxScryptN || p.R*p.P > maxScryptRP {
		return fmt.Errorf("%w: N=%d r=%d p=%d", ErrExcessiveCost, p.N, p.R, p.P)
	}
	return nil
}

// sealedBackup is the JSON document a backup is shipped as.
type sealedBackup struct {
	Version    int    `json:"v"`
	Salt       []byte `json:"salt"`
	N          int    `json:"scrypt_N"`
	R          int    `json:"scrypt_r"`
	P          int    `json:"scrypt_p"`
	Ciphertext []byte `json:"cipher"`
}

func (b sealedBackup) params() ScryptParams { return ScryptParams{N: b.N, R: b.R, P: b.P} }

// backupAEAD derives the ChaCha20-Poly1305 cipher for passphrase and salt.
func backupAEAD(passphrase string, salt []byte, p ScryptParams) (cipher.AEAD, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive backup key: %w", err)
	}
	return chacha20poly1305.New(key)
}

// Seal encrypts raw under passphrase with DefaultScryptParams.
func Seal(passphrase string, raw []byte) ([]byte, error) {
	return SealWithParams(passphrase, raw, DefaultScryptParams)
}

// SealWithParams encrypts raw under passphrase using the given scrypt cost.
// The salt is bound to the ciphertext as associated data.
func SealWithParams(passphrase string, raw []byte, params ScryptParams) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	aead, err := backupAEAD(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	// Every backup gets a fresh salt and therefore a fresh key; the nonce can stay zero.
	nonce := make([]byte, chacha20poly1305.NonceSize)

	return json.Marshal(sealedBackup{
		Version:    sealVersion,
		Salt:       salt,
		N:          params.N,
		R:          params.R,
		P:          params.P,
		Ciphertext: aead.Seal(nil, nonce, raw, salt),
	})
}

// Open returns the plaintext of a backup produced by Seal.
func Open(passphrase string, blob []byte) ([]byte, error) {
	var b sealedBackup
	if err := json.Unmarshal(blob, &b); err != nil {
		return nil, fmt.Errorf("decode sealed backup: %w", err)
	}
	if b.Version < 1 || b.Version > sealVersion {
		return nil, fmt.Errorf("unsupported sealed backup version %d", b.Version)
	}
	aead, err := backupAEAD(passphrase, b.Salt, b.params())
	if err != nil {
		return nil, err
	}
	raw, err := aead.Open(nil, make([]byte, chacha20poly1305.NonceSize), b.Ciphertext, b.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return raw, nil
}
