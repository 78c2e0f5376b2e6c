package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests. The version suffix allows a later
// algorithm change without colliding with stored digests.
const (
	DomainSnapshot = "bindform/snapshot/v1"
	DomainFormKey  = "bindform/formkey/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotDigest returns the digest of an object's canonical form.
// Two objects have the same digest iff they are Equal.
func SnapshotDigest(obj Object) (string, error) {
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("SnapshotDigest: failed to marshal: %w", err)
	}
	return HashWithDomain(DomainSnapshot, canonical), nil
}

// DigestOf hashes an already canonical snapshot text.
func DigestOf(snapshot string) string {
	return HashWithDomain(DomainSnapshot, []byte(snapshot))
}
