// Package permission is the single source of truth for custom permission
// grants.
//
// Each mini-app owns one list of records, one per supported permission type,
// persisted as a sealed item in the secure store under
// (<scope>.miniapp.permissions, permissions.<appId>). The scope is the host
// install scope: a fresh install uses a fresh scope and therefore starts from
// the default seed.
//
// Invariants:
//   - Get never returns an empty list: unknown apps are seeded with every type
//     denied, and the seed is written once even under concurrent first access
//   - Set merges by type, clears descriptions and never creates an app
//   - All writes for one app are serialized; no lock outlives a single
//     read-modify-write
//   - A failed write is reported as ErrPersist together with the list the
//     caller should act on for the current call
package permission
