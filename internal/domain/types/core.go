package types

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Curve names an elliptic curve used for persona keys.
type Curve string

// String returns the string form of the curve.
func (c Curve) String() string { return string(c) }

// CurveSecp256k1 is the only curve personas are created on.
const CurveSecp256k1 Curve = "secp256k1"

const (
	personaPrefix = "ec_key:"
	profilePrefix = "person:"
)

// Identifier is implemented by PersonaIdentifier and ProfileIdentifier.
type Identifier interface {
	String() string
	isIdentifier()
}

// Fingerprint is the short form of a persona public key shown to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// PersonaIdentifier is derived from the compressed public key of a persona.
type PersonaIdentifier struct {
	Curve Curve
	// CompressedPoint is base64 of the compressed point with '/' replaced by '|'.
	CompressedPoint string
}

// NewPersonaIdentifier encodes a compressed point on curve.
func NewPersonaIdentifier(curve Curve, compressed []byte) PersonaIdentifier {
	enc := base64.StdEncoding.EncodeToString(compressed)
	return PersonaIdentifier{Curve: curve, CompressedPoint: strings.ReplaceAll(enc, "/", "|")}
}

// ParsePersonaIdentifier parses the text form produced by String.
func ParsePersonaIdentifier(s string) (PersonaIdentifier, error) {
	rest, ok := strings.CutPrefix(s, personaPrefix)
	if !ok {
		return PersonaIdentifier{}, fmt.Errorf("persona identifier %q: missing %q prefix", s, personaPrefix)
	}
	curve, point, ok := strings.Cut(rest, "/")
	if !ok || curve == "" || point == "" {
		return PersonaIdentifier{}, fmt.Errorf("persona identifier %q: want %s<curve>/<point>", s, personaPrefix)
	}
	id := PersonaIdentifier{Curve: Curve(curve), CompressedPoint: point}
	if _, err := id.PointBytes(); err != nil {
		return PersonaIdentifier{}, fmt.Errorf("persona identifier %q: %w", s, err)
	}
	return id, nil
}

// String returns "ec_key:<curve>/<compressed point>".
func (id PersonaIdentifier) String() string {
	return personaPrefix + id.Curve.String() + "/" + id.CompressedPoint
}

// IsZero reports whether id is the zero value.
func (id PersonaIdentifier) IsZero() bool { return id.CompressedPoint == "" }

// Fingerprint returns the compressed point, which doubles as the fingerprint.
func (id PersonaIdentifier) Fingerprint() Fingerprint { return Fingerprint(id.CompressedPoint) }

// PointBytes decodes the compressed point.
func (id PersonaIdentifier) PointBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.ReplaceAll(id.CompressedPoint, "|", "/"))
}

// MarshalText implements encoding.TextMarshaler.
func (id PersonaIdentifier) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *PersonaIdentifier) UnmarshalText(b []byte) error {
	v, err := ParsePersonaIdentifier(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func (PersonaIdentifier) isIdentifier() {}

// ProfileIdentifier identifies an account on a social network.
type ProfileIdentifier struct {
	Network string
	UserID  string
}

// NewProfileIdentifier returns the identifier of userID on network.
func NewProfileIdentifier(network, userID string) ProfileIdentifier {
	return ProfileIdentifier{Network: network, UserID: userID}
}

// ParseProfileIdentifier parses the text form produced by String.
func ParseProfileIdentifier(s string) (ProfileIdentifier, error) {
	rest, ok := strings.CutPrefix(s, profilePrefix)
	if !ok {
		return ProfileIdentifier{}, fmt.Errorf("profile identifier %q: missing %q prefix", s, profilePrefix)
	}
	network, user, ok := strings.Cut(rest, "/")
	if !ok || network == "" || user == "" {
		return ProfileIdentifier{}, fmt.Errorf("profile identifier %q: want %s<network>/<user>", s, profilePrefix)
	}
	return ProfileIdentifier{Network: network, UserID: user}, nil
}

// String returns "person:<network>/<user>".
func (id ProfileIdentifier) String() string {
	return profilePrefix + id.Network + "/" + id.UserID
}

// IsZero reports whether id is the zero value.
func (id ProfileIdentifier) IsZero() bool { return id.Network == "" && id.UserID == "" }

// MarshalText implements encoding.TextMarshaler.
func (id ProfileIdentifier) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ProfileIdentifier) UnmarshalText(b []byte) error {
	v, err := ParseProfileIdentifier(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func (ProfileIdentifier) isIdentifier() {}

// ParseIdentifier parses either identifier form.
func ParseIdentifier(s string) (Identifier, error) {
	var (
		id  Identifier
		err error
	)
	switch {
	case strings.HasPrefix(s, personaPrefix):
		id, err = ParsePersonaIdentifier(s)
	case strings.HasPrefix(s, profilePrefix):
		id, err = ParseProfileIdentifier(s)
	default:
		return nil, fmt.Errorf("identifier %q: unknown kind", s)
	}
	if err != nil {
		return nil, err
	}
	return id, nil
}
