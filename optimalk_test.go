package citethread

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchOptimalKOrdering(t *testing.T) {
	points, err := SearchOptimalK(precomputedInput(t), ClusterOptions{
		Method: MethodKMedoids,
		Metric: MetricJaccardPrecomputed,
		Seed:   42,
	}, 2, 4, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, points, 3)

	// Results come back in k order no matter which worker finished first.
	for i, point := range points {
		assert.Equal(t, 2+i, point.K)
	}
}

func TestSearchOptimalKInertiaOnlyForCentroidMethods(t *testing.T) {
	medoids, err := SearchOptimalK(precomputedInput(t), ClusterOptions{
		Method: MethodKMedoids,
		Metric: MetricJaccardPrecomputed,
		Seed:   42,
	}, 2, 3, zerolog.Nop())
	require.NoError(t, err)
	for _, point := range medoids {
		assert.False(t, point.HasInertia)
	}

	kmeans, err := SearchOptimalK(featureInput(t), ClusterOptions{
		Method: MethodKMeansSeeded,
		Metric: MetricEuclidean,
		Seed:   42,
	}, 2, 3, zerolog.Nop())
	require.NoError(t, err)
	for _, point := range kmeans {
		assert.True(t, point.HasInertia)
	}
}

func TestSearchOptimalKDeterministic(t *testing.T) {
	opts := ClusterOptions{Method: MethodKMedoids, Metric: MetricJaccardPrecomputed, Seed: 42}
	first, err := SearchOptimalK(precomputedInput(t), opts, 2, 4, zerolog.Nop())
	require.NoError(t, err)
	second, err := SearchOptimalK(precomputedInput(t), opts, 2, 4, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSearchOptimalKValidation(t *testing.T) {
	input := precomputedInput(t)
	opts := ClusterOptions{Method: MethodKMedoids, Metric: MetricJaccardPrecomputed, Seed: 42}

	_, err := SearchOptimalK(input, opts, 1, 3, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidClusterCount)

	_, err = SearchOptimalK(input, opts, 2, 5, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidClusterCount)

	_, err = SearchOptimalK(input, opts, 4, 3, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidClusterCount)

	_, err = SearchOptimalK(ClusterInput{}, opts, 2, 3, zerolog.Nop())
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestBestKBySilhouette(t *testing.T) {
	points := []KSweepPoint{
		{K: 2, Silhouette: 0.4, SilhouetteDefined: true},
		{K: 3, Silhouette: 0.7, SilhouetteDefined: true},
		{K: 4, Silhouette: 0.9, SilhouetteDefined: false},
	}
	assert.Equal(t, 3, BestKBySilhouette(points))
	assert.Equal(t, 0, BestKBySilhouette([]KSweepPoint{{K: 2, SilhouetteDefined: false}}))
}

func TestSearchOptimalKBestBeatsAlternatives(t *testing.T) {
	// The two-pair corpus really has two clusters; the sweep should rank k=2 best.
	points, err := SearchOptimalK(precomputedInput(t), ClusterOptions{
		Method: MethodAgglomerative,
		Metric: MetricJaccardPrecomputed,
		Seed:   42,
	}, 2, 4, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, BestKBySilhouette(points))
}
