package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// DomainDataset is the domain prefix for dataset content fingerprints.
// The version suffix leaves room for changing the encoding later.
const DomainDataset = "insight/dataset/v1"

// Fingerprint computes a content hash over a record collection.
//
// Each record contributes its field names in sorted order followed by the
// canonical encoding of each value. Record order matters: the same records
// in a different order yield a different fingerprint, matching the store's
// order-preserving snapshots.
//
// Format: SHA256(domain + 0x00 + record_0 + 0x1e + record_1 ...)
func Fingerprint(records []Record) (string, error) {
	h := sha256.New()
	h.Write([]byte(DomainDataset))
	h.Write([]byte{0x00})

	for i, r := range records {
		if i > 0 {
			h.Write([]byte{0x1e})
		}
		names := make([]string, 0, len(r.Fields))
		for k := range r.Fields {
			names = append(names, k)
		}
		slices.Sort(names)

		vals := make([]Value, 0, len(names)*2)
		for _, k := range names {
			vals = append(vals, String(k), r.Fields[k])
		}
		enc, err := EncodeTuple(vals)
		if err != nil {
			return "", fmt.Errorf("Fingerprint: record %d: %w", i, err)
		}
		h.Write([]byte(enc))
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
