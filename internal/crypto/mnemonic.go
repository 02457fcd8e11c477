package crypto

import (
	"strings"

	"github.com/tyler-smith/go-bip39"

	"maskid/internal/domain"
	"maskid/internal/util/memzero"
)

// entropyBits yields a 12-word mnemonic.
const entropyBits = 128

// GenerateKeyPair creates a fresh mnemonic and derives the persona key pair
// from it and password.
func GenerateKeyPair(password string) (KeyPair, domain.MnemonicRecord, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return KeyPair{}, domain.MnemonicRecord{}, err
	}
	defer memzero.Zero(entropy)

	words, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return KeyPair{}, domain.MnemonicRecord{}, err
	}
	return deriveKeyPair(words, password)
}

// RecoverKeyPair re-derives the key pair of an existing mnemonic.
//
// It fails with domain.ErrInvalidMnemonic when the checksum does not verify.
func RecoverKeyPair(words, password string) (KeyPair, domain.MnemonicRecord, error) {
	words = NormalizeMnemonic(words)
	if !ValidateMnemonic(words) {
		return KeyPair{}, domain.MnemonicRecord{}, domain.E(domain.KindInvalidMnemonic, "recover key pair", "mnemonic checksum does not verify")
	}
	return deriveKeyPair(words, password)
}

// ValidateMnemonic reports whether words is a BIP-39 phrase with a valid checksum.
func ValidateMnemonic(words string) bool {
	return bip39.IsMnemonicValid(NormalizeMnemonic(words))
}

// NormalizeMnemonic collapses whitespace so equivalent phrases derive equal keys.
func NormalizeMnemonic(words string) string {
	return strings.Join(strings.Fields(words), " ")
}

func deriveKeyPair(words, password string) (KeyPair, domain.MnemonicRecord, error) {
	seed := bip39.NewSeed(words, password)
	defer memzero.Zero(seed)

	master, err := newMasterKey(seed)
	if err != nil {
		return KeyPair{}, domain.MnemonicRecord{}, err
	}
	defer master.Zero()
	node, err := derivePath(master, DerivationPath)
	if err != nil {
		return KeyPair{}, domain.MnemonicRecord{}, err
	}
	defer node.Zero()
	priv, err := nodePrivateKey(node)
	if err != nil {
		return KeyPair{}, domain.MnemonicRecord{}, err
	}
	defer priv.Zero()

	record := domain.MnemonicRecord{
		Words: words,
		Parameters: domain.MnemonicParameters{
			Path:         DerivationPath,
			WithPassword: password != "",
		},
	}
	return keyPairFromPrivate(priv), record, nil
}
