package citethread

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// QualityScore is the internal-validation triple for one partition. Defined is
// false when the partition collapsed to a single cluster; that is an expected
// outcome of sparse bibliographic data, reported as data rather than an error.
type QualityScore struct {
	Silhouette       float64 `json:"silhouette"`
	DaviesBouldin    float64 `json:"davies_bouldin"`
	CalinskiHarabasz float64 `json:"calinski_harabasz"`
	Defined          bool    `json:"defined"`
	Reason           string  `json:"reason,omitempty"`
}

// EvaluatePartition scores an assignment against the matrix that produced it.
// In Euclidean mode all three indices work on the feature rows. In precomputed
// mode the silhouette consumes the tagged distance matrix directly (converted
// from similarity exactly once by AsDistance), while Davies-Bouldin and
// Calinski-Harabasz treat the matrix rows as the working vectors.
func EvaluatePartition(input ClusterInput, metric Metric, labels []int, logger zerolog.Logger) (QualityScore, error) {
	if countDistinct(labels) < 2 {
		logger.Info().Msg("partition has fewer than 2 clusters, skipping evaluation")
		return QualityScore{Reason: "fewer than 2 distinct clusters"}, nil
	}

	var vectors [][]float64
	var silhouetteDistances [][]float64
	switch metric {
	case MetricJaccardPrecomputed:
		if input.Distances == nil {
			return QualityScore{}, fmt.Errorf("%w: %s evaluation requires a distance matrix", ErrMissingInput, metric)
		}
		distances := input.Distances.AsDistance().Values
		vectors = distances
		silhouetteDistances = distances
	default:
		if input.Features == nil {
			return QualityScore{}, fmt.Errorf("%w: %s evaluation requires feature vectors", ErrMissingInput, metric)
		}
		rows, _ := input.Features.Dims()
		vectors = make([][]float64, rows)
		for i := range vectors {
			vectors[i] = input.Features.RawRowView(i)
		}
		silhouetteDistances = euclideanDistances(input.Features)
	}

	return QualityScore{
		Silhouette:       silhouetteFromDistances(silhouetteDistances, labels),
		DaviesBouldin:    daviesBouldinIndex(vectors, labels),
		CalinskiHarabasz: calinskiHarabaszIndex(vectors, labels),
		Defined:          true,
	}, nil
}

// countDistinct returns the number of distinct labels in an assignment.
func countDistinct(labels []int) int {
	seen := make(map[int]struct{})
	for _, label := range labels {
		seen[label] = struct{}{}
	}
	return len(seen)
}

// silhouetteFromDistances calculates the mean silhouette over all points from
// a precomputed distance matrix. A point alone in its cluster contributes 0,
// so a partition of singletons evaluates without blowing up.
func silhouetteFromDistances(distances [][]float64, labels []int) float64 {
	n := len(labels)
	total := 0.0

	for i := range n {
		// a(i): mean distance to the rest of the own cluster.
		a := 0.0
		ownCount := 0
		for j := range n {
			if j != i && labels[j] == labels[i] {
				a += distances[i][j]
				ownCount++
			}
		}
		if ownCount == 0 {
			continue // singleton: silhouette 0
		}
		a /= float64(ownCount)

		// b(i): smallest mean distance to any other cluster.
		b := math.Inf(1)
		sums := make(map[int]float64)
		counts := make(map[int]int)
		for j := range n {
			if labels[j] != labels[i] {
				sums[labels[j]] += distances[i][j]
				counts[labels[j]]++
			}
		}
		for label, sum := range sums {
			if avg := sum / float64(counts[label]); avg < b {
				b = avg
			}
		}

		if math.Max(a, b) > 0 {
			total += (b - a) / math.Max(a, b)
		}
	}

	return total / float64(n)
}

// clusterMembers groups point indices by label.
func clusterMembers(labels []int) map[int][]int {
	members := make(map[int][]int)
	for i, label := range labels {
		members[label] = append(members[label], i)
	}
	return members
}

// clusterCentroids computes the mean vector of each cluster.
func clusterCentroids(vectors [][]float64, members map[int][]int) map[int][]float64 {
	dims := len(vectors[0])
	centroids := make(map[int][]float64, len(members))
	for label, indices := range members {
		centroid := make([]float64, dims)
		for _, idx := range indices {
			for j, v := range vectors[idx] {
				centroid[j] += v
			}
		}
		for j := range centroid {
			centroid[j] /= float64(len(indices))
		}
		centroids[label] = centroid
	}
	return centroids
}

// daviesBouldinIndex measures cluster separation against compactness; lower is
// better. Per-cluster scatter is the mean distance of members to the centroid.
func daviesBouldinIndex(vectors [][]float64, labels []int) float64 {
	members := clusterMembers(labels)
	centroids := clusterCentroids(vectors, members)

	scatter := make(map[int]float64, len(members))
	for label, indices := range members {
		sum := 0.0
		for _, idx := range indices {
			sum += euclidean(vectors[idx], centroids[label])
		}
		scatter[label] = sum / float64(len(indices))
	}

	index := 0.0
	for label1 := range members {
		maxRatio := 0.0
		for label2 := range members {
			if label1 == label2 {
				continue
			}
			separation := euclidean(centroids[label1], centroids[label2])
			if separation > 0 {
				if ratio := (scatter[label1] + scatter[label2]) / separation; ratio > maxRatio {
					maxRatio = ratio
				}
			}
		}
		index += maxRatio
	}
	return index / float64(len(members))
}

// calinskiHarabaszIndex is the ratio of between-cluster to within-cluster
// dispersion; higher is better.
func calinskiHarabaszIndex(vectors [][]float64, labels []int) float64 {
	n := len(vectors)
	dims := len(vectors[0])
	members := clusterMembers(labels)
	centroids := clusterCentroids(vectors, members)

	overall := make([]float64, dims)
	for _, vector := range vectors {
		for j, v := range vector {
			overall[j] += v
		}
	}
	for j := range overall {
		overall[j] /= float64(n)
	}

	between := 0.0
	within := 0.0
	for label, indices := range members {
		d := euclidean(centroids[label], overall)
		between += float64(len(indices)) * d * d
		for _, idx := range indices {
			dd := euclidean(vectors[idx], centroids[label])
			within += dd * dd
		}
	}

	k := float64(len(members))
	if within == 0 {
		return math.Inf(1)
	}
	return (between / (k - 1)) / (within / (float64(n) - k))
}
