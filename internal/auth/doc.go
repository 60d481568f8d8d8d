// Package auth decides whether a request may reach the store.
//
// # Client tokens
//
// Clients present an ES256K JWT (ECDSA over secp256k1, SHA-256 digest,
// 64-byte R||S signature) as a bearer token. The gate verifies it against the
// configured public key, rejects any other algorithm (ES256 included), checks
// exp and nbf with a small leeway, and takes the store id from the sub claim:
//
//	gate, err := auth.NewGate(auth.GateConfig{PublicKey: pub})
//	ac, err := gate.Authenticate(ctx, bearer)
//
// Every failure is reported as ErrUnauthorized. The reason is logged at
// debug level only.
//
// # Self-hosted mode
//
// With SelfHosted set the gate accepts every request without looking at
// credentials and requests name their own store id.
//
// # Admin key
//
// AdminGate guards the migration endpoints. It compares the presented key in
// constant time and has nothing to do with client tokens.
//
// # HTTP middleware
//
//	r.With(auth.HTTPMiddleware(gate)).Post("/putObjects", ...)
//	r.With(auth.RequireAdminKey(admin)).Post("/migration", ...)
package auth
