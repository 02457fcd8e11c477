// Package crypto derives and validates persona key material.
//
// Contents
//
//   - BIP-39 mnemonic generation and checksum validation (GenerateKeyPair,
//     RecoverKeyPair, ValidateMnemonic)
//   - BIP-32 derivation (btcutil/hdkeychain) of a secp256k1 key pair along DerivationPath
//   - Local key derivation from a public key and mnemonic (DeriveLocalKey)
//   - Persona identifiers from public keys (PersonaIdentifierFromPublicKey)
//   - Short display fingerprints (ShortFingerprint)
//
// # Notes
//
// Derivation is deterministic: the same words and password always yield the
// same key pair and therefore the same persona identifier. Seeds and
// intermediate key bytes are wiped with memzero before returning.
package crypto
