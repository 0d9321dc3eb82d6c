// Package identity derives stable content hashes used as natural keys for
// contributors and contributions.
//
// Contributor identity is not the raw tuple of free-text fields but a SHA-256
// digest of their normalized form, so two records differing only in case or
// whitespace resolve to the same contributor. Contribution identity chains the
// contributor hash into its own digest, tying contribution dedup to normalized
// contributor identity.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const fieldSeparator = "|"

// Normalize canonicalizes a free-text identity field: missing becomes the
// empty string, case is folded, internal whitespace runs collapse to a single
// space, and leading/trailing whitespace is trimmed.
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ContributorHash returns the hex-encoded SHA-256 digest of the pipe-joined
// normalized tuple (name, city, state, zip, occupation, employer).
//
// The field order is part of the contract: changing it silently breaks
// identity continuity across runs.
func ContributorHash(name, city, state, zip, occupation, employer string) string {
	fields := []string{
		Normalize(name),
		Normalize(city),
		Normalize(state),
		Normalize(zip),
		Normalize(occupation),
		Normalize(employer),
	}
	return sha256Hex(strings.Join(fields, fieldSeparator))
}

// ContributionHash returns the hex-encoded SHA-256 digest of the pipe-joined
// tuple (committeeID, date, amount, contributorHash), in that fixed order.
//
// committeeID is used as given because it is already a stable external id;
// date and amount are the raw textual forms the upstream returned. Passing the
// contributor identity hash rather than raw contributor fields means a
// contribution from the same real contributor with re-cased free text hashes
// identically.
func ContributionHash(committeeID, date, amount, contributorHash string) string {
	fields := []string{committeeID, date, amount, contributorHash}
	return sha256Hex(strings.Join(fields, fieldSeparator))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
