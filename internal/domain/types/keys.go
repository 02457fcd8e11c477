package types

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// KeyKind tags the three kinds of key material a persona can hold.
type KeyKind uint8

const (
	KeyKindECPublic KeyKind = iota + 1
	KeyKindECPrivate
	KeyKindSymmetric
)

// String returns a short name for the kind.
func (k KeyKind) String() string {
	switch k {
	case KeyKindECPublic:
		return "ec-public"
	case KeyKindECPrivate:
		return "ec-private"
	case KeyKindSymmetric:
		return "symmetric"
	default:
		return fmt.Sprintf("KeyKind(%d)", uint8(k))
	}
}

// Key is implemented by ECPublicKey, ECPrivateKey and AESKey.
type Key interface {
	Kind() KeyKind
}

// AlgorithmA256GCM is the JWK "alg" of local keys.
const AlgorithmA256GCM = "A256GCM"

const (
	jwkCurveK256 = "K-256"
)

var (
	errWrongKeyKind = errors.New("json web key has the wrong kind")
)

// ECPublicKey is an uncompressed elliptic-curve public key.
type ECPublicKey struct {
	Curve Curve
	X, Y  [32]byte
}

// Kind implements Key.
func (ECPublicKey) Kind() KeyKind { return KeyKindECPublic }

// IsZero reports whether k is the zero value.
func (k ECPublicKey) IsZero() bool { return k.Curve == "" }

// ECPrivateKey carries the scalar D alongside its public point.
type ECPrivateKey struct {
	Curve   Curve
	X, Y, D [32]byte
}

// Kind implements Key.
func (ECPrivateKey) Kind() KeyKind { return KeyKindECPrivate }

// Public returns the public half of k.
func (k ECPrivateKey) Public() ECPublicKey {
	return ECPublicKey{Curve: k.Curve, X: k.X, Y: k.Y}
}

// AESKey is a symmetric key used to encrypt secrets held on this device.
type AESKey struct {
	Algorithm string
	K         [32]byte
}

// Kind implements Key.
func (AESKey) Kind() KeyKind { return KeyKindSymmetric }

// jsonWebKey is the wire form shared by all three kinds.
type jsonWebKey struct {
	Kty    string   `json:"kty"`
	Crv    string   `json:"crv,omitempty"`
	Alg    string   `json:"alg,omitempty"`
	X      string   `json:"x,omitempty"`
	Y      string   `json:"y,omitempty"`
	D      string   `json:"d,omitempty"`
	K      string   `json:"k,omitempty"`
	Ext    bool     `json:"ext"`
	KeyOps []string `json:"key_ops"`
}

// MarshalJSON encodes k as a JSON Web Key.
func (k ECPublicKey) MarshalJSON() ([]byte, error) {
	crv, err := jwkCurve(k.Curve)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonWebKey{
		Kty:    "EC",
		Crv:    crv,
		X:      b64(k.X[:]),
		Y:      b64(k.Y[:]),
		Ext:    true,
		KeyOps: []string{"deriveKey", "deriveBits"},
	})
}

// UnmarshalJSON decodes a public EC JSON Web Key. A key carrying "d" is rejected.
func (k *ECPublicKey) UnmarshalJSON(data []byte) error {
	var w jsonWebKey
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Kty != "EC" || w.D != "" {
		return fmt.Errorf("ec public key: %w", errWrongKeyKind)
	}
	curve, err := curveFromJWK(w.Crv)
	if err != nil {
		return err
	}
	var out ECPublicKey
	out.Curve = curve
	if err := unb64(w.X, out.X[:]); err != nil {
		return fmt.Errorf("ec public key x: %w", err)
	}
	if err := unb64(w.Y, out.Y[:]); err != nil {
		return fmt.Errorf("ec public key y: %w", err)
	}
	*k = out
	return nil
}

// MarshalJSON encodes k as a JSON Web Key.
func (k ECPrivateKey) MarshalJSON() ([]byte, error) {
	crv, err := jwkCurve(k.Curve)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonWebKey{
		Kty:    "EC",
		Crv:    crv,
		X:      b64(k.X[:]),
		Y:      b64(k.Y[:]),
		D:      b64(k.D[:]),
		Ext:    true,
		KeyOps: []string{"deriveKey", "deriveBits"},
	})
}

// UnmarshalJSON decodes a private EC JSON Web Key.
func (k *ECPrivateKey) UnmarshalJSON(data []byte) error {
	var w jsonWebKey
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Kty != "EC" || w.D == "" {
		return fmt.Errorf("ec private key: %w", errWrongKeyKind)
	}
	curve, err := curveFromJWK(w.Crv)
	if err != nil {
		return err
	}
	var out ECPrivateKey
	out.Curve = curve
	if err := unb64(w.X, out.X[:]); err != nil {
		return fmt.Errorf("ec private key x: %w", err)
	}
	if err := unb64(w.Y, out.Y[:]); err != nil {
		return fmt.Errorf("ec private key y: %w", err)
	}
	if err := unb64(w.D, out.D[:]); err != nil {
		return fmt.Errorf("ec private key d: %w", err)
	}
	*k = out
	return nil
}

// MarshalJSON encodes k as an "oct" JSON Web Key.
func (k AESKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonWebKey{
		Kty:    "oct",
		Alg:    k.Algorithm,
		K:      b64(k.K[:]),
		Ext:    true,
		KeyOps: []string{"encrypt", "decrypt"},
	})
}

// UnmarshalJSON decodes an "oct" JSON Web Key.
func (k *AESKey) UnmarshalJSON(data []byte) error {
	var w jsonWebKey
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Kty != "oct" {
		return fmt.Errorf("aes key: %w", errWrongKeyKind)
	}
	if w.Alg != AlgorithmA256GCM {
		return fmt.Errorf("aes key: unsupported alg %q", w.Alg)
	}
	var out AESKey
	out.Algorithm = w.Alg
	if err := unb64(w.K, out.K[:]); err != nil {
		return fmt.Errorf("aes key k: %w", err)
	}
	*k = out
	return nil
}

// JWKCoordinates returns the base64url "x" and "y" members of k.
func (k ECPublicKey) JWKCoordinates() (x, y string) {
	return b64(k.X[:]), b64(k.Y[:])
}

func jwkCurve(c Curve) (string, error) {
	if c != CurveSecp256k1 {
		return "", fmt.Errorf("unsupported curve %q", c)
	}
	return jwkCurveK256, nil
}

func curveFromJWK(crv string) (Curve, error) {
	if crv != jwkCurveK256 {
		return "", fmt.Errorf("unsupported jwk curve %q", crv)
	}
	return CurveSecp256k1, nil
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func unb64(s string, dst []byte) error {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("want %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}
