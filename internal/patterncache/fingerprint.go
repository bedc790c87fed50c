package patterncache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Fingerprint computes the stable content hash keying a pattern cache entry:
// a SHA-256 over the description, strategy tag, and canonicalized
// requirements. Canonicalization sorts requirement keys so that semantically
// identical requests always hash to the same fingerprint regardless of map
// iteration order.
func Fingerprint(description, strategy string, requirements map[string]string) string {
	canon := canonicalRequirements(requirements)
	payload, _ := json.Marshal(struct {
		Description  string            `json:"description"`
		Strategy     string            `json:"strategy"`
		Requirements map[string]string `json:"requirements"`
	}{
		Description:  description,
		Strategy:     strategy,
		Requirements: canon,
	})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// canonicalRequirements rebuilds the map with sorted key insertion order;
// Go's encoding/json already sorts map keys on marshal, so this mainly
// guards against nil vs. empty-map producing different fingerprints.
func canonicalRequirements(requirements map[string]string) map[string]string {
	if len(requirements) == 0 {
		return map[string]string{}
	}
	keys := make([]string, 0, len(requirements))
	for k := range requirements {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(requirements))
	for _, k := range keys {
		out[k] = requirements[k]
	}
	return out
}
