package citethread

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ReferenceUniverse collects every distinct reference identifier seen across the
// documents, excluding the "N/A" sentinel. The result is sorted so that column
// order stays stable for the length of a run (and across runs on the same input).
func ReferenceUniverse(docs []Document) []string {
	seen := make(map[string]struct{})
	for _, doc := range docs {
		for ref := range doc.ReferenceSet() {
			seen[ref] = struct{}{}
		}
	}

	universe := make([]string, 0, len(seen))
	for ref := range seen {
		universe = append(universe, ref)
	}
	sort.Strings(universe)
	return universe
}

// EncodeFeatures builds the n×u binary presence matrix: row i, column j is 1
// iff document i cites universe identifier j. Documents without references
// (nil or sentinel-only lists) become all-zero rows.
func EncodeFeatures(docs []Document, universe []string) *mat.Dense {
	column := make(map[string]int, len(universe))
	for j, ref := range universe {
		column[ref] = j
	}

	cols := len(universe)
	if cols == 0 {
		cols = 1 // mat.NewDense rejects zero-width matrices
	}
	features := mat.NewDense(len(docs), cols, nil)
	for i, doc := range docs {
		for ref := range doc.ReferenceSet() {
			features.Set(i, column[ref], 1)
		}
	}
	return features
}
