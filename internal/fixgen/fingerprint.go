package fixgen

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// Fingerprint is the blake3 hash of the canonical JSON of the fix's patch
// set. Two responses that change the same lines the same way share a
// fingerprint regardless of diagnosis text or confidence.
func Fingerprint(fix *FixResponse) (string, error) {
	if fix == nil {
		return "", fmt.Errorf("fingerprint: nil fix")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fix.SuggestedFix); err != nil {
		return "", fmt.Errorf("canonicalize fix: %w", err)
	}

	hasher := blake3.New()
	if _, err := hasher.Write(buf.Bytes()); err != nil {
		return "", fmt.Errorf("hash fix: %w", err)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
