package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SyntheticID derives a stable identifier for an entity that lacks a native
// id. The hash covers the entity kind, its canonicalized name, and the parent
// id, so the same logical entity maps to the same id across runs.
func SyntheticID(kind, name, parentID string) string {
	hasher := sha256.New()
	hasher.Write([]byte(kind))
	hasher.Write([]byte{0})
	hasher.Write([]byte(canonicalize(name)))
	hasher.Write([]byte{0})
	hasher.Write([]byte(strings.TrimSpace(parentID)))
	sum := hasher.Sum(nil)
	return "syn-" + hex.EncodeToString(sum[:12])
}

func canonicalize(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}
