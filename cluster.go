package citethread

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Validation failures surfaced to the caller. They are raised before any
// computation starts and are never retried inside the engine.
var (
	ErrInvalidMethod       = errors.New("invalid clustering method")
	ErrInvalidMetric       = errors.New("invalid clustering metric")
	ErrInvalidClusterCount = errors.New("invalid cluster count")
	ErrMissingInput        = errors.New("missing clustering input")
)

// Method enumerates the interchangeable partitioning strategies. The set is
// closed: strategies are selected by name and constructed fresh per call.
type Method int

const (
	MethodKMeans Method = iota
	MethodKMeansSeeded
	MethodBisectingKMeans
	MethodKMedoids
	MethodAgglomerative
)

func (m Method) String() string {
	switch m {
	case MethodKMeans:
		return "k-means"
	case MethodKMeansSeeded:
		return "k-means-seeded"
	case MethodBisectingKMeans:
		return "bisecting-k-means"
	case MethodKMedoids:
		return "k-medoids"
	case MethodAgglomerative:
		return "agglomerative"
	}
	return "unknown"
}

// UsesCentroids reports whether the method updates synthetic centroids and
// therefore produces an inertia value and needs a coordinate space.
func (m Method) UsesCentroids() bool {
	switch m {
	case MethodKMeans, MethodKMeansSeeded, MethodBisectingKMeans:
		return true
	}
	return false
}

// ParseMethod resolves a method name from the configuration surface.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "k-means":
		return MethodKMeans, nil
	case "k-means-seeded":
		return MethodKMeansSeeded, nil
	case "bisecting-k-means":
		return MethodBisectingKMeans, nil
	case "k-medoids":
		return MethodKMedoids, nil
	case "agglomerative":
		return MethodAgglomerative, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMethod, name)
}

// Metric selects the working space: binary feature vectors under Euclidean
// distance, or the precomputed Jaccard distance matrix.
type Metric int

const (
	MetricEuclidean Metric = iota
	MetricJaccardPrecomputed
)

func (m Metric) String() string {
	if m == MetricJaccardPrecomputed {
		return "jaccard-precomputed"
	}
	return "euclidean-on-features"
}

// ParseMetric resolves a metric name from the configuration surface.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case "euclidean-on-features":
		return MetricEuclidean, nil
	case "jaccard-precomputed":
		return MetricJaccardPrecomputed, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMetric, name)
}

// ClusterInput carries the matrices a run may need. Features is the binary
// presence matrix (or an embedding); Distances is the tagged pairwise matrix.
// Which one is required depends on method and metric.
type ClusterInput struct {
	Features  *mat.Dense
	Distances *PairwiseMatrix
}

// Len returns the number of documents covered by the input, preferring the
// feature matrix when both are present.
func (in ClusterInput) Len() int {
	if in.Features != nil {
		rows, _ := in.Features.Dims()
		return rows
	}
	if in.Distances != nil {
		return in.Distances.Len()
	}
	return 0
}

// ClusterOptions configures a single clustering run.
type ClusterOptions struct {
	Method   Method
	Metric   Metric
	Clusters int
	Seed     int64
}

// ClusterOutcome is the result of one run: a dense label per document and, for
// centroid methods, the inertia (sum of squared distances to assigned centroids).
type ClusterOutcome struct {
	Labels     []int   `json:"labels"`
	Inertia    float64 `json:"inertia,omitempty"`
	HasInertia bool    `json:"has_inertia"`
}

const (
	kmeansMaxIterations = 100
	kmeansTolerance     = 1e-4
	pamMaxIterations    = 100
)

// RunClustering validates the request and dispatches to the selected strategy.
// Centroid methods run on the feature matrix in Euclidean mode and on a 2-D
// MDS embedding of the distance matrix in precomputed mode; k-medoids and
// agglomerative work on a distance matrix in both modes.
func RunClustering(input ClusterInput, opts ClusterOptions, logger zerolog.Logger) (ClusterOutcome, error) {
	n := input.Len()
	if n == 0 {
		return ClusterOutcome{}, fmt.Errorf("%w: no documents", ErrMissingInput)
	}
	if opts.Clusters < 2 || opts.Clusters > n {
		return ClusterOutcome{}, fmt.Errorf("%w: %d not in [2, %d]", ErrInvalidClusterCount, opts.Clusters, n)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	logger = logger.With().
		Stringer("method", opts.Method).
		Stringer("metric", opts.Metric).
		Int("clusters", opts.Clusters).
		Logger()

	if opts.Method.UsesCentroids() {
		vectors := input.Features
		if opts.Metric == MetricJaccardPrecomputed {
			if input.Distances == nil {
				return ClusterOutcome{}, fmt.Errorf("%w: %s metric requires a distance matrix", ErrMissingInput, opts.Metric)
			}
			vectors = ReduceToPlane(input.Distances, opts.Seed, logger)
		}
		if vectors == nil {
			return ClusterOutcome{}, fmt.Errorf("%w: %s requires feature vectors", ErrMissingInput, opts.Method)
		}

		var labels []int
		var inertia float64
		switch opts.Method {
		case MethodBisectingKMeans:
			labels, inertia = bisectingKMeans(vectors, opts.Clusters, rng, logger)
		default:
			seeded := opts.Method == MethodKMeansSeeded
			labels, inertia = kmeansFit(vectors, opts.Clusters, seeded, rng, logger)
		}
		return ClusterOutcome{Labels: densifyLabels(labels), Inertia: inertia, HasInertia: true}, nil
	}

	// Medoid and hierarchical methods consume a distance matrix directly.
	var distances [][]float64
	linkage := linkageAverage
	switch opts.Metric {
	case MetricJaccardPrecomputed:
		if input.Distances == nil {
			return ClusterOutcome{}, fmt.Errorf("%w: %s metric requires a distance matrix", ErrMissingInput, opts.Metric)
		}
		distances = input.Distances.AsDistance().Values
		linkage = linkageComplete
	default:
		if input.Features == nil {
			return ClusterOutcome{}, fmt.Errorf("%w: %s metric requires feature vectors", ErrMissingInput, opts.Metric)
		}
		distances = euclideanDistances(input.Features)
	}

	var labels []int
	switch opts.Method {
	case MethodKMedoids:
		labels = pamFit(distances, opts.Clusters, logger)
	case MethodAgglomerative:
		labels = agglomerativeFit(distances, opts.Clusters, linkage, logger)
	default:
		return ClusterOutcome{}, fmt.Errorf("%w: %q", ErrInvalidMethod, opts.Method)
	}
	return ClusterOutcome{Labels: densifyLabels(labels)}, nil
}

// kmeansFit runs Lloyd iterations on the given coordinate matrix. Standard
// initialization picks k distinct random rows; seeded initialization uses the
// k-means++ weighting. Both draw from the caller's seeded source only.
func kmeansFit(data *mat.Dense, k int, seeded bool, rng *rand.Rand, logger zerolog.Logger) ([]int, float64) {
	n, dims := data.Dims()

	var centroids *mat.Dense
	if seeded {
		centroids = initializeCentroidsPlusPlus(data, k, rng)
	} else {
		centroids = mat.NewDense(k, dims, nil)
		for i, idx := range rng.Perm(n)[:k] {
			centroids.SetRow(i, data.RawRowView(idx))
		}
	}

	assignments := make([]int, n)
	for iteration := 0; iteration < kmeansMaxIterations; iteration++ {
		newAssignments := assignToNearestCentroid(data, centroids)

		converged := true
		for i := range assignments {
			if assignments[i] != newAssignments[i] {
				converged = false
				break
			}
		}
		assignments = newAssignments

		if converged && iteration > 0 {
			logger.Debug().Int("iterations", iteration+1).Msg("k-means converged")
			break
		}

		newCentroids := updateCentroids(data, assignments, centroids)
		centroidChange := 0.0
		for i := range k {
			centroidChange += euclidean(centroids.RawRowView(i), newCentroids.RawRowView(i))
		}
		centroids = newCentroids

		if centroidChange/float64(k) < kmeansTolerance {
			logger.Debug().Int("iterations", iteration+1).Msg("k-means converged on centroid change")
			break
		}
	}

	inertia := 0.0
	for i := range n {
		d := euclidean(data.RawRowView(i), centroids.RawRowView(assignments[i]))
		inertia += d * d
	}
	return assignments, inertia
}

// initializeCentroidsPlusPlus picks centroids with the k-means++ weighting:
// the first uniformly, the rest proportional to squared distance from the
// nearest chosen centroid.
func initializeCentroidsPlusPlus(data *mat.Dense, k int, rng *rand.Rand) *mat.Dense {
	n, dims := data.Dims()
	centroids := mat.NewDense(k, dims, nil)
	centroids.SetRow(0, data.RawRowView(rng.Intn(n)))

	for i := 1; i < k; i++ {
		weights := make([]float64, n)
		totalWeight := 0.0
		for j := range n {
			point := data.RawRowView(j)
			minDist := math.Inf(1)
			for c := range i {
				if d := euclidean(point, centroids.RawRowView(c)); d < minDist {
					minDist = d
				}
			}
			weights[j] = minDist * minDist
			totalWeight += weights[j]
		}

		if totalWeight == 0 {
			// All points coincide with a chosen centroid.
			centroids.SetRow(i, data.RawRowView(rng.Intn(n)))
			continue
		}

		target := rng.Float64() * totalWeight
		cumulative := 0.0
		for j, w := range weights {
			cumulative += w
			if cumulative >= target {
				centroids.SetRow(i, data.RawRowView(j))
				break
			}
		}
	}

	return centroids
}

// assignToNearestCentroid assigns every row to its nearest centroid, ties
// broken toward the lower centroid index.
func assignToNearestCentroid(data, centroids *mat.Dense) []int {
	n, _ := data.Dims()
	k, _ := centroids.Dims()
	assignments := make([]int, n)

	for i := range n {
		point := data.RawRowView(i)
		best := 0
		bestDist := math.Inf(1)
		for j := range k {
			if d := euclidean(point, centroids.RawRowView(j)); d < bestDist {
				bestDist = d
				best = j
			}
		}
		assignments[i] = best
	}
	return assignments
}

// updateCentroids recomputes each centroid as the mean of its assigned rows.
// A centroid that lost all its points keeps its previous position.
func updateCentroids(data *mat.Dense, assignments []int, previous *mat.Dense) *mat.Dense {
	n, dims := data.Dims()
	k, _ := previous.Dims()

	centroids := mat.NewDense(k, dims, nil)
	counts := make([]int, k)
	for i := range n {
		cid := assignments[i]
		point := data.RawRowView(i)
		for j := range dims {
			centroids.Set(cid, j, centroids.At(cid, j)+point[j])
		}
		counts[cid]++
	}

	for i := range k {
		if counts[i] == 0 {
			centroids.SetRow(i, previous.RawRowView(i))
			continue
		}
		for j := range dims {
			centroids.Set(i, j, centroids.At(i, j)/float64(counts[i]))
		}
	}
	return centroids
}

// bisectingKMeans recursively splits the largest remaining cluster with a
// seeded 2-means until k leaves exist (or no cluster can be split further).
func bisectingKMeans(data *mat.Dense, k int, rng *rand.Rand, logger zerolog.Logger) ([]int, float64) {
	n, dims := data.Dims()

	clusters := [][]int{make([]int, n)}
	for i := range n {
		clusters[0][i] = i
	}
	unsplittable := make(map[int]bool)

	for len(clusters) < k {
		// Pick the largest cluster that is still splittable.
		target := -1
		for i, members := range clusters {
			if len(members) < 2 || unsplittable[i] {
				continue
			}
			if target == -1 || len(members) > len(clusters[target]) {
				target = i
			}
		}
		if target == -1 {
			logger.Debug().Int("clusters", len(clusters)).Msg("no splittable cluster left")
			break
		}

		members := clusters[target]
		sub := mat.NewDense(len(members), dims, nil)
		for i, idx := range members {
			sub.SetRow(i, data.RawRowView(idx))
		}

		subLabels, _ := kmeansFit(sub, 2, true, rng, logger)
		var left, right []int
		for i, label := range subLabels {
			if label == 0 {
				left = append(left, members[i])
			} else {
				right = append(right, members[i])
			}
		}
		if len(left) == 0 || len(right) == 0 {
			// All members coincide; this cluster cannot be bisected.
			unsplittable[target] = true
			continue
		}

		clusters[target] = left
		clusters = append(clusters, right)
	}

	labels := make([]int, n)
	inertia := 0.0
	for cid, members := range clusters {
		centroid := make([]float64, dims)
		for _, idx := range members {
			for j, v := range data.RawRowView(idx) {
				centroid[j] += v
			}
		}
		for j := range centroid {
			centroid[j] /= float64(len(members))
		}
		for _, idx := range members {
			labels[idx] = cid
			d := euclidean(data.RawRowView(idx), centroid)
			inertia += d * d
		}
	}
	return labels, inertia
}

// pamFit runs partition-around-medoids on a distance matrix. Medoids are
// actual documents. The BUILD phase seeds them greedily; the SWAP phase
// evaluates every (medoid, non-medoid) exchange per iteration, applies the
// single best improving swap, and stops when none improves the total
// within-cluster distance. Swap candidates are scored in parallel; the winning
// swap is chosen and applied sequentially to preserve convergence semantics.
func pamFit(distances [][]float64, k int, logger zerolog.Logger) []int {
	n := len(distances)
	medoids := pamBuild(distances, k)

	isMedoid := make([]bool, n)
	for _, m := range medoids {
		isMedoid[m] = true
	}

	for iteration := 0; iteration < pamMaxIterations; iteration++ {
		currentCost := pamCost(distances, medoids)

		// Score every candidate swap concurrently; each candidate writes one
		// disjoint slot, so the scan below stays deterministic.
		costs := make([]float64, k*n)
		for i := range costs {
			costs[i] = math.Inf(1)
		}

		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for pos := range k {
			for candidate := range n {
				if isMedoid[candidate] {
					continue
				}
				slot := pos*n + candidate
				g.Go(func() error {
					trial := make([]int, k)
					copy(trial, medoids)
					trial[pos] = candidate
					costs[slot] = pamCost(distances, trial)
					return nil
				})
			}
		}
		_ = g.Wait()

		bestSlot := -1
		bestCost := currentCost
		for slot, cost := range costs {
			if cost < bestCost {
				bestCost = cost
				bestSlot = slot
			}
		}
		if bestSlot == -1 {
			logger.Debug().Int("iterations", iteration+1).Float64("cost", currentCost).Msg("PAM converged")
			break
		}

		pos, candidate := bestSlot/n, bestSlot%n
		isMedoid[medoids[pos]] = false
		isMedoid[candidate] = true
		medoids[pos] = candidate
	}

	labels := make([]int, n)
	for i := range n {
		labels[i] = nearestMedoid(distances, medoids, i)
	}
	return labels
}

// pamBuild seeds the medoids: the first minimizes total distance to all
// points, each later one maximizes the drop in total nearest-medoid distance.
func pamBuild(distances [][]float64, k int) []int {
	n := len(distances)

	first := 0
	bestTotal := math.Inf(1)
	for i := range n {
		total := 0.0
		for j := range n {
			total += distances[i][j]
		}
		if total < bestTotal {
			bestTotal = total
			first = i
		}
	}

	medoids := []int{first}
	nearest := make([]float64, n)
	for i := range n {
		nearest[i] = distances[i][first]
	}

	for len(medoids) < k {
		best := -1
		bestGain := math.Inf(-1)
		for candidate := range n {
			taken := false
			for _, m := range medoids {
				if m == candidate {
					taken = true
					break
				}
			}
			if taken {
				continue
			}
			gain := 0.0
			for j := range n {
				if improvement := nearest[j] - distances[candidate][j]; improvement > 0 {
					gain += improvement
				}
			}
			if gain > bestGain {
				bestGain = gain
				best = candidate
			}
		}
		medoids = append(medoids, best)
		for j := range n {
			if distances[best][j] < nearest[j] {
				nearest[j] = distances[best][j]
			}
		}
	}
	return medoids
}

// pamCost is the total distance from every point to its nearest medoid.
func pamCost(distances [][]float64, medoids []int) float64 {
	total := 0.0
	for i := range distances {
		best := math.Inf(1)
		for _, m := range medoids {
			if distances[i][m] < best {
				best = distances[i][m]
			}
		}
		total += best
	}
	return total
}

// nearestMedoid returns the medoid position closest to point i, ties broken
// toward the earlier medoid.
func nearestMedoid(distances [][]float64, medoids []int, i int) int {
	best := 0
	bestDist := math.Inf(1)
	for pos, m := range medoids {
		if distances[i][m] < bestDist {
			bestDist = distances[i][m]
			best = pos
		}
	}
	return best
}

type linkageKind int

const (
	linkageAverage linkageKind = iota
	linkageComplete
)

// agglomerativeFit merges clusters bottom-up until k remain. Average linkage
// uses the mean pairwise distance between members, complete linkage the
// maximum. Ties resolve toward the earliest pair, so the merge order is a
// function of the distance matrix alone.
func agglomerativeFit(distances [][]float64, k int, linkage linkageKind, logger zerolog.Logger) []int {
	n := len(distances)
	clusters := make([][]int, n)
	for i := range n {
		clusters[i] = []int{i}
	}

	for len(clusters) > k {
		minDist := math.Inf(1)
		mergeI, mergeJ := -1, -1

		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				var dist float64
				switch linkage {
				case linkageComplete:
					for _, a := range clusters[i] {
						for _, b := range clusters[j] {
							if distances[a][b] > dist {
								dist = distances[a][b]
							}
						}
					}
				default:
					sum := 0.0
					for _, a := range clusters[i] {
						for _, b := range clusters[j] {
							sum += distances[a][b]
						}
					}
					dist = sum / float64(len(clusters[i])*len(clusters[j]))
				}

				if dist < minDist {
					minDist = dist
					mergeI, mergeJ = i, j
				}
			}
		}

		if mergeI == -1 {
			break
		}
		clusters[mergeI] = append(clusters[mergeI], clusters[mergeJ]...)
		clusters = append(clusters[:mergeJ], clusters[mergeJ+1:]...)
	}
	logger.Debug().Int("clusters", len(clusters)).Msg("agglomerative merging finished")

	labels := make([]int, n)
	for cid, members := range clusters {
		for _, idx := range members {
			labels[idx] = cid
		}
	}
	return labels
}

// euclideanDistances builds the full pairwise Euclidean distance matrix over
// the rows of a feature matrix.
func euclideanDistances(data *mat.Dense) [][]float64 {
	n, _ := data.Dims()
	distances := make([][]float64, n)
	for i := range distances {
		distances[i] = make([]float64, n)
	}
	for i := range n {
		for j := i + 1; j < n; j++ {
			d := euclidean(data.RawRowView(i), data.RawRowView(j))
			distances[i][j] = d
			distances[j][i] = d
		}
	}
	return distances
}

// densifyLabels renumbers labels into a dense 0..m-1 set in first-encounter
// order, preserving the grouping.
func densifyLabels(labels []int) []int {
	next := 0
	mapping := make(map[int]int)
	dense := make([]int, len(labels))
	for i, label := range labels {
		if _, ok := mapping[label]; !ok {
			mapping[label] = next
			next++
		}
		dense[i] = mapping[label]
	}
	return dense
}

// GroupRow is one row of the two-column result table handed to the delivery layer.
type GroupRow struct {
	Group int    `json:"group"`
	Title string `json:"title"`
}

// GroupRows flattens an assignment into (Group, Title) rows, one per document,
// in document order.
func GroupRows(labels []int, titles []string) []GroupRow {
	rows := make([]GroupRow, len(labels))
	for i, label := range labels {
		rows[i] = GroupRow{Group: label, Title: titles[i]}
	}
	return rows
}

// GroupTitles maps each label to its member titles, in the order the
// assignment scan encounters them.
func GroupTitles(labels []int, titles []string) map[int][]string {
	groups := make(map[int][]string)
	for i, label := range labels {
		groups[label] = append(groups[label], titles[i])
	}
	return groups
}
