// Package dedupe suppresses repeated submissions. Callers claim an
// idempotency key before acting on it; a second claim of the same key within
// the TTL is refused.
package dedupe
