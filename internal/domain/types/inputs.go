package types

// PersonaKeys is the key material handed to CreatePersonaByJSONWebKey.
type PersonaKeys struct {
	PublicKey     ECPublicKey
	PrivateKey    *ECPrivateKey
	LocalKey      *AESKey
	Nickname      string
	Mnemonic      *MnemonicRecord
	Uninitialized bool
}

// ProfilePersonaKeys is the key material handed to CreateProfileWithPersona.
type ProfilePersonaKeys struct {
	Nickname   string
	PublicKey  ECPublicKey
	PrivateKey *ECPrivateKey
	LocalKey   *AESKey
	Mnemonic   *MnemonicRecord
}

// DeleteMode selects how DeletePersona treats private keys.
type DeleteMode string

const (
	DeleteEvenWithPrivate DeleteMode = "delete even with private"
	SafeDelete            DeleteMode = "safe delete"
)
