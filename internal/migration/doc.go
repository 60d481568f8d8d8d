// Package migration backfills a store from another deployment.
//
// A Source yields windows of Records ordered by (store_id, key). The Runner
// fetches one window, decodes it and applies it with a single
// Store.ApplyBatch call. Rows are written through the normal conditional
// write rule, so replaying a window skips what already landed and a failed
// window is retried from the same start index.
//
// HTTPSource speaks the legacy export protocol:
//
//	POST <url>
//	x-api-key: <admin key>
//	{"limit": 100, "offset": 0}
//
// and expects a JSON array of records with base64 values and
// "YYYY-MM-DD HH:MM:SS" timestamps. The gateway serves the same protocol from
// its own store, so StoreSource and HTTPSource are interchangeable.
package migration
