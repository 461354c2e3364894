package citethread

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sameGroup reports whether two documents landed in the same cluster.
func sameGroup(labels []int, i, j int) bool {
	return labels[i] == labels[j]
}

func precomputedInput(t *testing.T) ClusterInput {
	t.Helper()
	sim := BuildSimilarityMatrix(testDocs(), zerolog.Nop())
	return ClusterInput{Distances: sim.AsDistance()}
}

func featureInput(t *testing.T) ClusterInput {
	t.Helper()
	// Two coincident pairs: the k-means++ weighting cannot place both initial
	// centroids inside one pair, so centroid methods split them regardless of
	// which point the seeded draw lands on.
	docs := []Document{
		{Index: 0, References: []string{"10.1/r1", "10.1/r2", "10.1/r3"}},
		{Index: 1, References: []string{"10.1/r1", "10.1/r2", "10.1/r3"}},
		{Index: 2, References: []string{"10.1/r8", "10.1/r9", "10.1/r10"}},
		{Index: 3, References: []string{"10.1/r8", "10.1/r9", "10.1/r10"}},
	}
	return ClusterInput{Features: EncodeFeatures(docs, ReferenceUniverse(docs))}
}

func TestParseMethod(t *testing.T) {
	for _, name := range []string{"k-means", "k-means-seeded", "bisecting-k-means", "k-medoids", "agglomerative"} {
		method, err := ParseMethod(name)
		require.NoError(t, err)
		assert.Equal(t, name, method.String())
	}

	_, err := ParseMethod("dbscan")
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

func TestParseMetric(t *testing.T) {
	for _, name := range []string{"euclidean-on-features", "jaccard-precomputed"} {
		metric, err := ParseMetric(name)
		require.NoError(t, err)
		assert.Equal(t, name, metric.String())
	}

	_, err := ParseMetric("cosine")
	assert.ErrorIs(t, err, ErrInvalidMetric)
}

func TestRunClusteringValidation(t *testing.T) {
	input := precomputedInput(t)
	opts := ClusterOptions{Method: MethodKMedoids, Metric: MetricJaccardPrecomputed, Seed: 42}

	opts.Clusters = 1
	_, err := RunClustering(input, opts, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidClusterCount)

	opts.Clusters = 5 // more clusters than documents
	_, err = RunClustering(input, opts, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidClusterCount)

	opts.Clusters = 2
	_, err = RunClustering(ClusterInput{}, opts, zerolog.Nop())
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestKMedoidsPrecomputed(t *testing.T) {
	outcome, err := RunClustering(precomputedInput(t), ClusterOptions{
		Method:   MethodKMedoids,
		Metric:   MetricJaccardPrecomputed,
		Clusters: 2,
		Seed:     42,
	}, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, outcome.Labels, 4)
	assert.False(t, outcome.HasInertia)

	assert.True(t, sameGroup(outcome.Labels, 0, 1))
	assert.True(t, sameGroup(outcome.Labels, 2, 3))
	assert.False(t, sameGroup(outcome.Labels, 0, 2))
}

func TestAgglomerativePrecomputed(t *testing.T) {
	outcome, err := RunClustering(precomputedInput(t), ClusterOptions{
		Method:   MethodAgglomerative,
		Metric:   MetricJaccardPrecomputed,
		Clusters: 2,
		Seed:     42,
	}, zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, sameGroup(outcome.Labels, 0, 1))
	assert.True(t, sameGroup(outcome.Labels, 2, 3))
	assert.False(t, sameGroup(outcome.Labels, 0, 2))
}

func TestKMeansSeededOnFeatures(t *testing.T) {
	outcome, err := RunClustering(featureInput(t), ClusterOptions{
		Method:   MethodKMeansSeeded,
		Metric:   MetricEuclidean,
		Clusters: 2,
		Seed:     42,
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, outcome.HasInertia)
	assert.GreaterOrEqual(t, outcome.Inertia, 0.0)

	assert.True(t, sameGroup(outcome.Labels, 0, 1))
	assert.True(t, sameGroup(outcome.Labels, 2, 3))
	assert.False(t, sameGroup(outcome.Labels, 0, 2))
}

func TestBisectingKMeansOnFeatures(t *testing.T) {
	outcome, err := RunClustering(featureInput(t), ClusterOptions{
		Method:   MethodBisectingKMeans,
		Metric:   MetricEuclidean,
		Clusters: 2,
		Seed:     42,
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, outcome.HasInertia)

	assert.True(t, sameGroup(outcome.Labels, 0, 1))
	assert.True(t, sameGroup(outcome.Labels, 2, 3))
	assert.False(t, sameGroup(outcome.Labels, 0, 2))
}

func TestCentroidMethodOnPrecomputedDistances(t *testing.T) {
	// Centroid methods have no coordinates in precomputed mode and must run on
	// the 2-D embedding instead of failing.
	outcome, err := RunClustering(precomputedInput(t), ClusterOptions{
		Method:   MethodKMeansSeeded,
		Metric:   MetricJaccardPrecomputed,
		Clusters: 2,
		Seed:     42,
	}, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, outcome.Labels, 4)
	assert.True(t, outcome.HasInertia)
}

func TestRunClusteringDeterministic(t *testing.T) {
	for _, method := range []Method{MethodKMeans, MethodKMeansSeeded, MethodBisectingKMeans, MethodKMedoids, MethodAgglomerative} {
		opts := ClusterOptions{
			Method:   method,
			Metric:   MetricJaccardPrecomputed,
			Clusters: 2,
			Seed:     7,
		}
		first, err := RunClustering(precomputedInput(t), opts, zerolog.Nop())
		require.NoError(t, err, method.String())
		second, err := RunClustering(precomputedInput(t), opts, zerolog.Nop())
		require.NoError(t, err, method.String())
		assert.Equal(t, first.Labels, second.Labels, method.String())
	}
}

func TestRunClusteringLabelsAreDense(t *testing.T) {
	outcome, err := RunClustering(precomputedInput(t), ClusterOptions{
		Method:   MethodAgglomerative,
		Metric:   MetricJaccardPrecomputed,
		Clusters: 2,
		Seed:     42,
	}, zerolog.Nop())
	require.NoError(t, err)

	seen := make(map[int]struct{})
	for _, label := range outcome.Labels {
		assert.GreaterOrEqual(t, label, 0)
		assert.Less(t, label, 2)
		seen[label] = struct{}{}
	}
	assert.Len(t, seen, 2)
}

func TestRunClusteringAllSingletons(t *testing.T) {
	// k equal to the document count is a legal request.
	outcome, err := RunClustering(precomputedInput(t), ClusterOptions{
		Method:   MethodKMedoids,
		Metric:   MetricJaccardPrecomputed,
		Clusters: 4,
		Seed:     42,
	}, zerolog.Nop())
	require.NoError(t, err)
	seen := make(map[int]struct{})
	for _, label := range outcome.Labels {
		seen[label] = struct{}{}
	}
	assert.Len(t, seen, 4)
}

func TestDistanceMethodsOrderInvariant(t *testing.T) {
	// Reordering documents may renumber labels but must not change which
	// documents share a cluster.
	docs := testDocs()
	reversed := make([]Document, len(docs))
	for i, doc := range docs {
		doc.Index = len(docs) - 1 - i
		reversed[len(docs)-1-i] = doc
	}

	for _, method := range []Method{MethodKMedoids, MethodAgglomerative} {
		opts := ClusterOptions{Method: method, Metric: MetricJaccardPrecomputed, Clusters: 2, Seed: 42}

		forward, err := RunClustering(ClusterInput{Distances: BuildSimilarityMatrix(docs, zerolog.Nop()).AsDistance()}, opts, zerolog.Nop())
		require.NoError(t, err, method.String())
		backward, err := RunClustering(ClusterInput{Distances: BuildSimilarityMatrix(reversed, zerolog.Nop()).AsDistance()}, opts, zerolog.Nop())
		require.NoError(t, err, method.String())

		// Position p in the reversed run holds the document at n-1-p.
		n := len(docs)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				together := sameGroup(forward.Labels, i, j)
				reversedTogether := sameGroup(backward.Labels, n-1-i, n-1-j)
				assert.Equal(t, together, reversedTogether, "%s: documents %d and %d", method, i, j)
			}
		}
	}
}

func TestGroupRows(t *testing.T) {
	rows := GroupRows([]int{1, 0, 1}, []string{"a", "b", "c"})
	require.Len(t, rows, 3)
	assert.Equal(t, GroupRow{Group: 1, Title: "a"}, rows[0])
	assert.Equal(t, GroupRow{Group: 0, Title: "b"}, rows[1])

	groups := GroupTitles([]int{1, 0, 1}, []string{"a", "b", "c"})
	assert.Equal(t, []string{"a", "c"}, groups[1])
	assert.Equal(t, []string{"b"}, groups[0])
}
