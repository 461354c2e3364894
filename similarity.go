package citethread

import (
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// NoReferences is the sentinel CrossRef leaves when it knows an article but none
// of its cited works. It never enters the identifier universe or a reference set.
const NoReferences = "N/A"

// Document is one article as seen by the clustering engine. Index is the stable
// per-run identity threaded through every matrix and assignment; References is
// nil when the article's cited works were never resolved.
type Document struct {
	Index      int      `json:"index"`
	Title      string   `json:"title"`
	References []string `json:"references"`
}

// HasReferences reports whether the document carries a resolved reference list.
// Unresolved documents are excluded from Jaccard computation entirely; they only
// participate in clustering through the feature-vector path.
func (d Document) HasReferences() bool {
	return d.References != nil
}

// ReferenceSet returns the document's reference identifiers as a set, dropping
// empty tokens and the "N/A" sentinel.
func (d Document) ReferenceSet() map[string]struct{} {
	set := make(map[string]struct{}, len(d.References))
	for _, ref := range d.References {
		ref = strings.TrimSpace(ref)
		if ref == "" || ref == NoReferences {
			continue
		}
		set[ref] = struct{}{}
	}
	return set
}

// WithReferences filters documents down to the ones with a resolved reference list.
func WithReferences(docs []Document) []Document {
	var filtered []Document
	for _, doc := range docs {
		if doc.HasReferences() {
			filtered = append(filtered, doc)
		}
	}
	return filtered
}

// JaccardSimilarity calculates |A∩B| / |A∪B| for two reference sets.
// Two empty sets are defined to have similarity 0: articles with no usable
// references share nothing, and sparse bibliographic data makes this a common
// case rather than an error.
func JaccardSimilarity(a, b map[string]struct{}) float64 {
	intersection := 0
	for ref := range a {
		if _, ok := b[ref]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// MatrixKind tags a pairwise matrix as holding similarities or distances, so the
// 1-x conversion before silhouette scoring happens exactly once.
type MatrixKind int

const (
	KindSimilarity MatrixKind = iota
	KindDistance
)

func (k MatrixKind) String() string {
	if k == KindDistance {
		return "distance"
	}
	return "similarity"
}

// PairwiseMatrix is a symmetric n×n matrix over document indices, written once
// during construction and never mutated afterwards.
type PairwiseMatrix struct {
	Kind   MatrixKind
	Values [][]float64
}

// Len returns the number of documents the matrix covers.
func (m *PairwiseMatrix) Len() int {
	return len(m.Values)
}

// AsDistance returns the matrix in distance form. A similarity matrix is
// converted entrywise to 1-s with a zero diagonal; a matrix already tagged as
// distance is returned unchanged, so repeated calls cannot invert twice.
func (m *PairwiseMatrix) AsDistance() *PairwiseMatrix {
	if m.Kind == KindDistance {
		return m
	}
	n := m.Len()
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
		for j := range values[i] {
			if i == j {
				continue
			}
			values[i][j] = 1.0 - m.Values[i][j]
		}
	}
	return &PairwiseMatrix{Kind: KindDistance, Values: values}
}

// BuildSimilarityMatrix computes the pairwise Jaccard similarity matrix for the
// given documents. All documents must carry a resolved reference list (filter
// with WithReferences first). The O(n²) pair loop fans out across workers: the
// corpus is read-only and each row is written by exactly one goroutine.
func BuildSimilarityMatrix(docs []Document, logger zerolog.Logger) *PairwiseMatrix {
	n := len(docs)

	sets := make([]map[string]struct{}, n)
	for i, doc := range docs {
		sets[i] = doc.ReferenceSet()
	}

	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range n {
		g.Go(func() error {
			values[i][i] = 1.0
			for j := i + 1; j < n; j++ {
				values[i][j] = JaccardSimilarity(sets[i], sets[j])
			}
			return nil
		})
	}
	_ = g.Wait() // workers never fail

	// Mirror the upper triangle; each cell below the diagonal is still written
	// exactly once, after the fan-out completed.
	for i := range n {
		for j := i + 1; j < n; j++ {
			values[j][i] = values[i][j]
		}
	}

	logger.Debug().Int("documents", n).Msg("similarity matrix built")
	return &PairwiseMatrix{Kind: KindSimilarity, Values: values}
}

// SimilarityPair is one non-zero entry of the similarity matrix, identified by
// article titles for reporting.
type SimilarityPair struct {
	Title1     string  `json:"title_1"`
	Title2     string  `json:"title_2"`
	Similarity float64 `json:"similarity"`
}

// NonZeroSimilarityPairs returns the sparse reporting view of a similarity
// matrix: every unordered pair with similarity above zero. Zero entries are
// dropped from this view only; they stay zero in the dense matrix.
func NonZeroSimilarityPairs(docs []Document, m *PairwiseMatrix) []SimilarityPair {
	var pairs []SimilarityPair
	for i := 0; i < m.Len(); i++ {
		for j := i + 1; j < m.Len(); j++ {
			if m.Values[i][j] == 0 {
				continue
			}
			pairs = append(pairs, SimilarityPair{
				Title1:     docs[i].Title,
				Title2:     docs[j].Title,
				Similarity: m.Values[i][j],
			})
		}
	}
	return pairs
}
