// Package tokencache remembers bearer tokens that already passed signature
// verification, keyed by a fingerprint of the token, so hot clients do not
// pay for an ES256K verify on every request.
package tokencache
