package citethread

import (
	"math"
	"math/rand"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

const (
	mdsDimensions    = 2
	mdsMaxIterations = 300
	mdsTolerance     = 1e-9
)

// ReduceToPlane projects a precomputed distance matrix into 2-D coordinates
// whose pairwise Euclidean distances approximate the input distances. The
// initial layout comes from classical MDS (double centering plus an
// eigendecomposition); SMACOF iterations then minimize the raw stress. The
// seed only matters when the eigendecomposition degenerates, so identical
// input and seed always reproduce the same embedding.
func ReduceToPlane(dist *PairwiseMatrix, seed int64, logger zerolog.Logger) *mat.Dense {
	d := dist.AsDistance().Values
	n := len(d)

	rng := rand.New(rand.NewSource(seed))
	coords := classicalMDS(d, rng)

	stress := rawStress(d, coords)
	for iteration := 0; iteration < mdsMaxIterations; iteration++ {
		coords = guttmanTransform(d, coords)
		newStress := rawStress(d, coords)
		if math.Abs(stress-newStress) < mdsTolerance {
			logger.Debug().Int("iterations", iteration+1).Float64("stress", newStress).Msg("MDS converged")
			stress = newStress
			break
		}
		stress = newStress
	}

	embedded := mat.NewDense(n, mdsDimensions, nil)
	for i := range n {
		embedded.SetRow(i, coords[i])
	}
	return embedded
}

// classicalMDS builds the initial configuration by double-centering the squared
// distance matrix and reading coordinates off the top two eigenpairs. Falls
// back to a seeded random layout when the factorization fails or the spectrum
// has no positive part.
func classicalMDS(d [][]float64, rng *rand.Rand) [][]float64 {
	n := len(d)

	// Squared distances and their means for the centering step.
	d2 := make([][]float64, n)
	rowMeans := make([]float64, n)
	grandMean := 0.0
	for i := range n {
		d2[i] = make([]float64, n)
		for j := range n {
			d2[i][j] = d[i][j] * d[i][j]
			rowMeans[i] += d2[i][j]
		}
		grandMean += rowMeans[i]
		rowMeans[i] /= float64(n)
	}
	grandMean /= float64(n * n)

	// B = -1/2 * J D² J, expressed entrywise.
	b := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			b.SetSym(i, j, -0.5*(d2[i][j]-rowMeans[i]-rowMeans[j]+grandMean))
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(b, true) {
		return randomLayout(n, rng)
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// Eigenvalues come back in ascending order; the last two are the largest.
	coords := make([][]float64, n)
	for i := range coords {
		coords[i] = make([]float64, mdsDimensions)
	}
	usable := 0
	for axis := 0; axis < mdsDimensions; axis++ {
		idx := n - 1 - axis
		if idx < 0 || values[idx] <= 0 {
			continue
		}
		scale := math.Sqrt(values[idx])
		for i := range n {
			coords[i][axis] = vectors.At(i, idx) * scale
		}
		usable++
	}
	if usable == 0 {
		return randomLayout(n, rng)
	}
	return coords
}

// randomLayout spreads points uniformly in the unit square from the seeded source.
func randomLayout(n int, rng *rand.Rand) [][]float64 {
	coords := make([][]float64, n)
	for i := range coords {
		coords[i] = make([]float64, mdsDimensions)
		for axis := range coords[i] {
			coords[i][axis] = rng.Float64()
		}
	}
	return coords
}

// guttmanTransform performs one SMACOF majorization step: X ← (1/n) B(X) X.
func guttmanTransform(d [][]float64, coords [][]float64) [][]float64 {
	n := len(d)
	updated := make([][]float64, n)
	for i := range updated {
		updated[i] = make([]float64, mdsDimensions)
	}

	for i := range n {
		rowSum := 0.0
		bRow := make([]float64, n)
		for j := range n {
			if i == j {
				continue
			}
			dij := euclidean(coords[i], coords[j])
			if dij > 0 {
				bRow[j] = -d[i][j] / dij
				rowSum += bRow[j]
			}
		}
		bii := -rowSum

		for axis := 0; axis < mdsDimensions; axis++ {
			sum := bii * coords[i][axis]
			for j := range n {
				if i != j {
					sum += bRow[j] * coords[j][axis]
				}
			}
			updated[i][axis] = sum / float64(n)
		}
	}

	return updated
}

// rawStress is the sum of squared differences between target and embedded distances.
func rawStress(d [][]float64, coords [][]float64) float64 {
	stress := 0.0
	for i := range d {
		for j := i + 1; j < len(d); j++ {
			diff := d[i][j] - euclidean(coords[i], coords[j])
			stress += diff * diff
		}
	}
	return stress
}

// euclidean calculates the Euclidean distance between two coordinate vectors.
func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
