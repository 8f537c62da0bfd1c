// Package license implements the core of the MCR license server: the key
// registry and the activation engine.
//
// The Registry owns the set of issued credentials and guarantees the
// atomic, exactly-once transition from issued to activated. TryClaim and
// Revoke on the same token are serialized through a per-token lock held
// across the full read-modify-write-persist sequence, so two devices racing
// to redeem the same key can never both win, and a revoke can never land in
// the middle of an in-flight claim.
//
// The Engine applies the lifecycle rules on top of the registry: it decides
// activation outcomes, derives expiry from the grant window, re-validates
// key+device and account+device pairs without mutating state, and performs
// the explicit extend-grant (stacking) operation against accounts. Expiry
// is never stored as a state of its own; it is derived at read time from
// the stored timestamp, so no background sweeper exists.
package license
