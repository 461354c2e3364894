package citethread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceUniverse(t *testing.T) {
	docs := []Document{
		{References: []string{"10.1/b", "10.1/a"}},
		{References: []string{"10.1/a", NoReferences}},
		{References: nil},
	}
	universe := ReferenceUniverse(docs)
	assert.Equal(t, []string{"10.1/a", "10.1/b"}, universe)
}

func TestReferenceUniverseStableOrder(t *testing.T) {
	docs := testDocs()
	first := ReferenceUniverse(docs)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ReferenceUniverse(docs))
	}
}

func TestEncodeFeatures(t *testing.T) {
	docs := []Document{
		{References: []string{"10.1/a", "10.1/c"}},
		{References: []string{"10.1/b"}},
		{References: []string{NoReferences}},
		{References: nil},
	}
	universe := ReferenceUniverse(docs)
	require.Equal(t, []string{"10.1/a", "10.1/b", "10.1/c"}, universe)

	features := EncodeFeatures(docs, universe)
	rows, cols := features.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 3, cols)

	assert.Equal(t, []float64{1, 0, 1}, features.RawRowView(0))
	assert.Equal(t, []float64{0, 1, 0}, features.RawRowView(1))
	// Sentinel-only and unresolved documents become all-zero rows.
	assert.Equal(t, []float64{0, 0, 0}, features.RawRowView(2))
	assert.Equal(t, []float64{0, 0, 0}, features.RawRowView(3))
}

func TestEncodeFeaturesEmptyUniverse(t *testing.T) {
	docs := []Document{{References: []string{NoReferences}}, {References: nil}}
	features := EncodeFeatures(docs, ReferenceUniverse(docs))
	rows, cols := features.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 1, cols)
	assert.Equal(t, 0.0, features.At(0, 0))
}
