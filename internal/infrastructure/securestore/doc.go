// Package securestore is the host's secure key-value persistence.
//
// Items are addressed by a (service, account) pair, the same addressing a
// platform keychain uses. Every backend seals values before they touch disk:
//
//   - File: one age-encrypted file per item under a data directory
//   - SQLite: one row per item, sealed with XChaCha20-Poly1305
//   - Memory: unsealed map for tests and ephemeral hosts
//
// The seal is bound to the (service, account) label, so a value copied to
// another item fails to open instead of being silently accepted.
//
// Example Usage:
//
//	sealer, err := securestore.LoadOrCreateAgeSealer(filepath.Join(dir, "store.key"))
//	store, err := securestore.NewFileStore(filepath.Join(dir, "secure"), sealer)
//	err = store.Write(ctx, "host.miniapp.permissions", "app-1", data)
//	data, err := store.Read(ctx, "host.miniapp.permissions", "app-1")
package securestore
