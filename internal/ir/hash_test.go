package ir

import (
	"encoding/hex"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterminism(t *testing.T) {
	v := VectorPair([]float64{9, 18}, []float64{11, 22})

	h1, err := Hash(DomainEnvelope, v)
	require.NoError(t, err)
	h2, err := Hash(DomainEnvelope, v)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "Hash must be deterministic")
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestHashChangesWithContent(t *testing.T) {
	h1, err := Hash(DomainFactor, Pair(0.9, 1.1))
	require.NoError(t, err)
	h2, err := Hash(DomainFactor, Pair(0.9, 1.2))
	require.NoError(t, err)
	h3, err := Hash(DomainFactor, Pair(1.1, 0.9))
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h1, h3, "lo/hi order is significant")
}

func TestHashNegativeZeroEqualsZero(t *testing.T) {
	h1, err := Hash(DomainStdev, Vector{0, 1})
	require.NoError(t, err)
	h2, err := Hash(DomainStdev, Vector{math.Copysign(0, -1), 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestDomainSeparationPreventsCrossTypeCollision(t *testing.T) {
	v := Vector{0.1, 0.2}
	relErr, err := Hash(DomainRelError, v)
	require.NoError(t, err)
	stdev, err := Hash(DomainStdev, v)
	require.NoError(t, err)

	assert.NotEqual(t, relErr, stdev, "same content in different domains must not collide")
}

func TestHashWithDomainNullSeparator(t *testing.T) {
	// "ab" + 0x00 + "c" must differ from "a" + 0x00 + "bc"
	assert.NotEqual(t, hashWithDomain("ab", []byte("c")), hashWithDomain("a", []byte("bc")))
}

func TestHashRejectsNonFinite(t *testing.T) {
	_, err := Hash(DomainEnvelope, Vector{math.NaN()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), DomainEnvelope)
}

func TestHashHexEncoding(t *testing.T) {
	h := HashBytes(DomainWorkspace, []byte(`{"channels":[]}`))
	_, err := hex.DecodeString(h)
	require.NoError(t, err)
	assert.Len(t, h, 64)
}

func TestConversionID(t *testing.T) {
	ws := HashBytes(DomainWorkspace, []byte("{}"))

	id1, err := ConversionID(ws, "meas", "")
	require.NoError(t, err)
	id2, err := ConversionID(ws, "meas", "")
	require.NoError(t, err)
	id3, err := ConversionID(ws, "meas", "patch_1")
	require.NoError(t, err)
	id4, err := ConversionID(ws, "other", "")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
	assert.NotEqual(t, id1, id4)
}

func TestDomainConstants(t *testing.T) {
	domains := []string{DomainEnvelope, DomainFactor, DomainRelError, DomainStdev, DomainWorkspace, DomainProgram}
	seen := map[string]bool{}
	for _, d := range domains {
		assert.Contains(t, d, "stanhf/")
		assert.Contains(t, d, "/v1")
		assert.False(t, seen[d], "duplicate domain %s", d)
		seen[d] = true
	}
}
