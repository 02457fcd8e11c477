// Package store provides persona database implementations of
// domain.PersonaStore.
//
// Two stores live here and share one transactional core:
//   - MemoryStore holds records in process memory. Write access is applied
//     copy-on-write and swapped in on success, so a failed unit of work leaves
//     no trace and queries keep reading the last committed state.
//   - FileStore keeps the same document as JSON under the configured home
//     directory and commits through an atomic temp-file rename.
//
// The package also holds the passphrase-sealed envelope (scrypt +
// ChaCha20-Poly1305) used for persona backups. A SQLite store lives in the
// sqlite subpackage.
package store
