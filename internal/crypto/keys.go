package crypto

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"maskid/internal/domain"
)

var errUnsupportedCurve = errors.New("unsupported curve")

// KeyPair is a persona's secp256k1 key pair in JSON Web Key form.
type KeyPair struct {
	PublicKey  domain.ECPublicKey
	PrivateKey domain.ECPrivateKey
}

// keyPairFromPrivate expands a secp256k1 scalar into both JWK halves.
func keyPairFromPrivate(priv *secp256k1.PrivateKey) KeyPair {
	uncompressed := priv.PubKey().SerializeUncompressed()

	var kp KeyPair
	kp.PrivateKey.Curve = domain.CurveSecp256k1
	copy(kp.PrivateKey.X[:], uncompressed[1:33])
	copy(kp.PrivateKey.Y[:], uncompressed[33:65])
	d := priv.Key.Bytes()
	kp.PrivateKey.D = d
	kp.PublicKey = kp.PrivateKey.Public()
	return kp
}

// parsePublicKey validates that pub is a point on its curve.
func parsePublicKey(pub domain.ECPublicKey) (*secp256k1.PublicKey, error) {
	if pub.Curve != domain.CurveSecp256k1 {
		return nil, fmt.Errorf("%w %q", errUnsupportedCurve, pub.Curve)
	}
	raw := make([]byte, 0, 65)
	raw = append(raw, 0x04)
	raw = append(raw, pub.X[:]...)
	raw = append(raw, pub.Y[:]...)
	return secp256k1.ParsePubKey(raw)
}

// PersonaIdentifierFromPublicKey derives the identifier of the persona owning pub.
func PersonaIdentifierFromPublicKey(pub domain.ECPublicKey) (domain.PersonaIdentifier, error) {
	key, err := parsePublicKey(pub)
	if err != nil {
		return domain.PersonaIdentifier{}, domain.Wrap(domain.KindInvalidArgument, "persona identifier", "invalid public key", err)
	}
	return domain.NewPersonaIdentifier(pub.Curve, key.SerializeCompressed()), nil
}

// MatchesPrivateKey reports whether priv is the private half of pub.
func MatchesPrivateKey(pub domain.ECPublicKey, priv domain.ECPrivateKey) bool {
	if priv.Curve != pub.Curve || priv.Curve != domain.CurveSecp256k1 {
		return false
	}
	kp := keyPairFromPrivate(secp256k1.PrivKeyFromBytes(priv.D[:]))
	return kp.PublicKey == pub
}
