// Package types defines the entity shapes shared across the sync-storage
// system: the three-level Scope that isolates items, the versioned
// StoredItem, list results, and the option structs carried through the
// storage adapter contract.
//
// These types are intentionally free of behaviour beyond validation and
// simple derivations (ETag, active/expired state) so that every layer from
// the HTTP edge down to the backend adapters can share them without
// import cycles.
package types
