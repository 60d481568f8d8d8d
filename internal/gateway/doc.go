// Package gateway orchestrates the vss-gateway server components.
//
// # Overview
//
// The gateway package wires the store, the object service, client token
// verification and the migration runner behind one HTTP server. It owns
// every component and releases them in Shutdown.
//
// # HTTP API
//
// Client routes require a bearer token signed with the configured
// secp256k1 key (unless self_hosted is set). Every body is JSON and every
// route is a POST:
//
//   - /getObject, /v2/getObject - read one object; null when absent
//   - /putObjects - conditional writes, stopping at the first rejection
//   - /deleteObject - conditional tombstone
//   - /listKeyVersions - every live key in one array
//   - /v2/listKeyVersions - one page of live keys with a continuation token
//
// v1 reads return values as base64 strings; v2 reads return byte arrays.
// Writes accept either encoding.
//
// Administrative routes require the admin key as a bearer token or in
// the X-Api-Key header:
//
//   - POST /migration/ - drain the configured source in the background
//   - POST /migration/step - apply one window synchronously
//   - GET /migration/status - progress of the current or last run
//   - POST /migration/export - serve a window of the local store
//
// Health routes are unauthenticated:
//
//   - GET /health-check - legacy liveness, answers null
//   - GET /health - liveness
//   - GET /health/ready - storage ping
//
// # Status Codes
//
//	200  success
//	400  malformed body or invalid argument
//	401  missing or invalid credentials, or a foreign store_id
//	409  version conflict (body names the key)
//	500  failed migration window (body carries next_start_index)
//	503  storage unavailable (Retry-After: 1)
//
// # Listeners
//
// The server listens on server.http_addr, or joins a tailnet through tsnet
// when tailscale.enabled is set, optionally exposing itself with Funnel.
//
// # Lifecycle
//
//	gw, err := gateway.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
package gateway
