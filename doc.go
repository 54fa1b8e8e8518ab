// Package accounts provides account administration primitives (user and
// group repositories over Bun, a capability guarded service, HTTP
// helpers) plus lifecycle extension points for downstream admin panels.
//
// User lifecycle:
//   - Users carry activation, suspension, and ban flags persisted via Bun.
//     The visible UserStatus is derived from those flags, ban dominating
//     suspension, so the stored record never disagrees with itself.
//   - UserLifecycle centralizes flag changes, timestamp handling, hooks,
//     and persistence. Setting a flag to its current value is a no-op, so
//     repeated suspend or ban requests are safe to replay.
//
// Identifier obfuscation:
//   - IDCodec translates internal ids into keyed opaque tokens at the API
//     boundary. Tokens that fail to decode read as not found, so clients
//     can neither enumerate accounts nor learn whether a guess was close.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the Admin
//     service and the lifecycle to describe create, update, delete,
//     status, membership, and password events. Sinks run best-effort
//     (errors are logged) so you can forward to a database or queue
//     without blocking administration.
package accounts
