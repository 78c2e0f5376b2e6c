// Package ir defines the value model of a bound object.
//
// ir imports nothing internal; every other package builds on it.
//
// Key design constraints:
//   - one representation per number: integral values in the int64
//     range are Int, everything else is Float (see Number)
//   - null is a first-class value (Null) and renders as "" in fields
//   - MarshalCanonical is the only serialization used for snapshots
//     and digests
package ir
