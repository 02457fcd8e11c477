package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"

	"maskid/internal/domain"
	"maskid/internal/util/memzero"
)

// localKeyIterations is the PBKDF2 work factor for local keys.
const localKeyIterations = 100_000

// DeriveLocalKey derives the AES-256-GCM local key of a persona.
//
// The JWK coordinates of pub act as the PBKDF2 password and the mnemonic words
// as the salt, so the key is reproducible from the recovery phrase alone.
func DeriveLocalKey(pub domain.ECPublicKey, words string) domain.AESKey {
	x, y := pub.JWKCoordinates()
	raw := pbkdf2.Key([]byte(x+y), []byte(NormalizeMnemonic(words)), localKeyIterations, 32, sha256.New)
	defer memzero.Zero(raw)

	key := domain.AESKey{Algorithm: domain.AlgorithmA256GCM}
	copy(key.K[:], raw)
	return key
}
