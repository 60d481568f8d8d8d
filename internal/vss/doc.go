// Package vss implements the versioned object operations exposed to clients.
//
// # Overview
//
// The Service sits between the HTTP handlers and the store. It validates
// requests, turns puts and deletes into conditional writes, and hides
// tombstones from reads:
//
//	svc := vss.New(st, logger)
//	err := svc.PutObjects(ctx, "wallet-42", []vss.KeyValue{{Key: "state", Value: blob, Version: 2}})
//
// # Errors
//
//   - ErrInvalidArgument: missing store id or key, version out of range, bad page token
//   - *ConflictError: a write lost; errors.Is(err, store.ErrVersionConflict) holds
//   - store.ErrNotFound: no live object for the key
//   - store.ErrUnavailable: the backend failed
//
// # Versions
//
// Versions are client-supplied 32-bit counters. store.SentinelVersion
// (2^32-1) skips the strict-increase check and is how clients force an
// overwrite or replay a write.
package vss
