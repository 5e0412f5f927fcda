package collapse

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// digestView is the part of a run that must be reproducible. The run ID is
// excluded.
type digestView struct {
	Emitted []string      `json:"emitted"`
	Trace   []TraceRow    `json:"trace"`
	Ledger  []LedgerEntry `json:"ledger"`
}

// CanonicalJSON encodes the reproducible part of the run. Struct fields
// encode in declaration order and no maps are involved, so the bytes are
// stable.
func (r *Run) CanonicalJSON() ([]byte, error) {
	return json.Marshal(digestView{Emitted: r.Emitted, Trace: r.Trace, Ledger: r.Ledger})
}

// Digest returns the hex sha256 of CanonicalJSON. Two runs over the same
// context, kernels and candidates have the same digest.
func (r *Run) Digest() string {
	b, err := r.CanonicalJSON()
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
