package citethread

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduceToPlaneShape(t *testing.T) {
	dist := BuildSimilarityMatrix(testDocs(), zerolog.Nop()).AsDistance()
	coords := ReduceToPlane(dist, 42, zerolog.Nop())

	rows, cols := coords.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 2, cols)
}

func TestReduceToPlaneDeterministic(t *testing.T) {
	dist := BuildSimilarityMatrix(testDocs(), zerolog.Nop()).AsDistance()

	first := ReduceToPlane(dist, 42, zerolog.Nop())
	second := ReduceToPlane(dist, 42, zerolog.Nop())

	rows, cols := first.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			assert.Equal(t, first.At(i, j), second.At(i, j))
		}
	}
}

func TestReduceToPlanePreservesStructure(t *testing.T) {
	// Near documents must land closer together than far documents.
	dist := BuildSimilarityMatrix(testDocs(), zerolog.Nop()).AsDistance()
	coords := ReduceToPlane(dist, 42, zerolog.Nop())

	near := euclidean(coords.RawRowView(0), coords.RawRowView(1))
	far := euclidean(coords.RawRowView(0), coords.RawRowView(2))
	require.Less(t, near, far)

	near = euclidean(coords.RawRowView(2), coords.RawRowView(3))
	far = euclidean(coords.RawRowView(1), coords.RawRowView(3))
	assert.Less(t, near, far)
}
