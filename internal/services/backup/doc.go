// Package backup exports the persona database as a passphrase-sealed blob and
// restores it.
//
// Export reads raw records, keys included, straight from the store and seals
// them with the scrypt + ChaCha20-Poly1305 envelope from the store package.
// Import restores personas and links through the persona service, so every
// restored link is created with the same write-scope guarantees as a live one.
package backup
