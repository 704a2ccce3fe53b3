package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fingerprintRecords() []Record {
	return []Record{
		{Dataset: "sections", Fields: map[string]Value{"dept": String("cpsc"), "avg": Number(80)}},
		{Dataset: "sections", Fields: map[string]Value{"dept": String("math"), "avg": Number(90)}},
	}
}

func TestFingerprintDeterminism(t *testing.T) {
	fp1, err := Fingerprint(fingerprintRecords())
	require.NoError(t, err)
	fp2, err := Fingerprint(fingerprintRecords())
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2, "Fingerprint must be deterministic")
	assert.Len(t, fp1, 64, "SHA-256 hex is 64 characters")
}

func TestFingerprintChangesWithContent(t *testing.T) {
	base, err := Fingerprint(fingerprintRecords())
	require.NoError(t, err)

	changed := fingerprintRecords()
	changed[1].Fields["avg"] = Number(91)
	fpChanged, err := Fingerprint(changed)
	require.NoError(t, err)

	reordered := fingerprintRecords()
	reordered[0], reordered[1] = reordered[1], reordered[0]
	fpReordered, err := Fingerprint(reordered)
	require.NoError(t, err)

	assert.NotEqual(t, base, fpChanged)
	assert.NotEqual(t, base, fpReordered)
}

func TestFingerprintEmpty(t *testing.T) {
	fp, err := Fingerprint(nil)
	require.NoError(t, err)
	assert.Len(t, fp, 64)
}
