// Package store holds the failure-model sentinels shared by the storage
// primitives (vectorstore, graphstore, catalog) so callers can errors.Is
// against a single set regardless of which backend raised them.
package store

import "errors"

var (
	// ErrNotFound is returned when an operation addresses an id that does
	// not exist in the store.
	ErrNotFound = errors.New("store: not found")

	// ErrValidationFailed is returned when a write's arguments fail a
	// store's own invariants (e.g. a vector of the wrong dimension).
	ErrValidationFailed = errors.New("store: validation failed")

	// ErrConflict is returned when a write would violate a uniqueness
	// constraint the store enforces.
	ErrConflict = errors.New("store: conflict")

	// ErrUnsupportedOperation is returned by operations a backend
	// structurally cannot perform (e.g. vectorstore.Get).
	ErrUnsupportedOperation = errors.New("store: unsupported operation")

	// ErrBackendUnavailable is returned when a remote backend (Postgres,
	// a graph database) cannot be reached.
	ErrBackendUnavailable = errors.New("store: backend unavailable")
)
