package citethread

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// KSweepPoint is the score record for one candidate cluster count. Inertia is
// only present for centroid methods; Silhouette may be undefined when the
// partition collapsed.
type KSweepPoint struct {
	K                 int     `json:"k"`
	Silhouette        float64 `json:"silhouette"`
	SilhouetteDefined bool    `json:"silhouette_defined"`
	Inertia           float64 `json:"inertia,omitempty"`
	HasInertia        bool    `json:"has_inertia"`
}

// SearchOptimalK clusters and evaluates every k in the inclusive [minK, maxK]
// range, producing the score curves for elbow and silhouette-peak inspection.
// Candidates run concurrently; each k derives its own seed from the base seed,
// and results are merged in k order regardless of completion order.
func SearchOptimalK(input ClusterInput, opts ClusterOptions, minK, maxK int, logger zerolog.Logger) ([]KSweepPoint, error) {
	n := input.Len()
	if n == 0 {
		return nil, fmt.Errorf("%w: no documents", ErrMissingInput)
	}
	if minK < 2 || maxK > n || minK > maxK {
		return nil, fmt.Errorf("%w: range [%d, %d] not within [2, %d]", ErrInvalidClusterCount, minK, maxK, n)
	}

	points := make([]KSweepPoint, maxK-minK+1)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for k := minK; k <= maxK; k++ {
		g.Go(func() error {
			kOpts := opts
			kOpts.Clusters = k
			kOpts.Seed = opts.Seed + int64(k)

			outcome, err := RunClustering(input, kOpts, logger)
			if err != nil {
				return fmt.Errorf("k=%d: %w", k, err)
			}
			quality, err := EvaluatePartition(input, kOpts.Metric, outcome.Labels, logger)
			if err != nil {
				return fmt.Errorf("k=%d: %w", k, err)
			}

			points[k-minK] = KSweepPoint{
				K:                 k,
				Silhouette:        quality.Silhouette,
				SilhouetteDefined: quality.Defined,
				Inertia:           outcome.Inertia,
				HasInertia:        outcome.HasInertia,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, point := range points {
		logger.Info().
			Int("k", point.K).
			Float64("silhouette", point.Silhouette).
			Bool("defined", point.SilhouetteDefined).
			Msg("k sweep candidate")
	}
	return points, nil
}

// BestKBySilhouette picks the candidate with the highest defined silhouette.
// Returns 0 when no candidate produced a defined score.
func BestKBySilhouette(points []KSweepPoint) int {
	best := 0
	bestScore := -2.0
	for _, point := range points {
		if point.SilhouetteDefined && point.Silhouette > bestScore {
			bestScore = point.Silhouette
			best = point.K
		}
	}
	return best
}
