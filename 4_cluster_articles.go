package citethread

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var clusterFlags struct {
	method   string
	metric   string
	clusters int
	sweep    bool
	minK     int
	maxK     int
	start    string
	end      string
	seed     int64
}

// ClusterArticlesCmd: groups stored articles into citation threads
var ClusterArticlesCmd = &cobra.Command{
	Use:   "cluster-articles",
	Short: "Cluster stored articles by shared references",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := NewLogger("cluster-articles")

		method, err := ParseMethod(clusterFlags.method)
		if err != nil {
			return err
		}
		metric, err := ParseMetric(clusterFlags.metric)
		if err != nil {
			return err
		}

		db, err := openArticleDB(articleDBPath)
		if err != nil {
			return fmt.Errorf("failed to open article database: %w", err)
		}
		defer db.Close()

		articles, err := articlesBetween(db, clusterFlags.start, clusterFlags.end)
		if err != nil {
			return fmt.Errorf("failed to load articles: %w", err)
		}
		docs := DocumentsFromArticles(articles)
		logger.Info().Int("articles", len(docs)).Msg("articles loaded")

		input, titles := buildClusterInput(docs, metric, logger)
		if input.Len() < 2 {
			return fmt.Errorf("%w: need at least 2 articles with resolved references", ErrMissingInput)
		}

		if err := os.MkdirAll("clusters", 0755); err != nil {
			return fmt.Errorf("failed to create clusters directory: %w", err)
		}

		opts := ClusterOptions{
			Method:   method,
			Metric:   metric,
			Clusters: clusterFlags.clusters,
			Seed:     clusterFlags.seed,
		}

		if clusterFlags.sweep {
			points, err := SearchOptimalK(input, opts, clusterFlags.minK, clusterFlags.maxK, logger)
			if err != nil {
				return err
			}
			if err := writeJSON(filepath.Join("clusters", "k_sweep.json"), points); err != nil {
				return err
			}
			best := BestKBySilhouette(points)
			if best == 0 {
				logger.Warn().Msg("no candidate k produced a defined silhouette, keeping requested count")
			} else {
				logger.Info().Int("k", best).Msg("best cluster count by silhouette")
				opts.Clusters = best
			}
		}

		outcome, err := RunClustering(input, opts, logger)
		if err != nil {
			return err
		}

		score, err := EvaluatePartition(input, metric, outcome.Labels, logger)
		if err != nil {
			return err
		}
		event := logger.Info().Int("clusters", opts.Clusters)
		if outcome.HasInertia {
			event = event.Float64("inertia", outcome.Inertia)
		}
		if score.Defined {
			event = event.
				Float64("silhouette", score.Silhouette).
				Float64("davies_bouldin", score.DaviesBouldin).
				Float64("calinski_harabasz", score.CalinskiHarabasz)
		} else {
			event = event.Str("quality", score.Reason)
		}
		event.Msg("clustering complete")

		groups := GroupRows(outcome.Labels, titles)
		if err := writeJSON(filepath.Join("clusters", "groups.json"), clusterResult{
			Method:  opts.Method.String(),
			Metric:  opts.Metric.String(),
			Outcome: outcome,
			Quality: score,
			Groups:  groups,
		}); err != nil {
			return err
		}
		return writeGroupCSV(filepath.Join("clusters", "groups.csv"), groups)
	},
}

func init() {
	flags := ClusterArticlesCmd.Flags()
	flags.StringVar(&clusterFlags.method, "method", "agglomerative", "clustering method: k-means, k-means-seeded, bisecting-k-means, k-medoids, agglomerative")
	flags.StringVar(&clusterFlags.metric, "metric", "jaccard-precomputed", "metric: euclidean-on-features or jaccard-precomputed")
	flags.IntVar(&clusterFlags.clusters, "clusters", 5, "number of clusters")
	flags.BoolVar(&clusterFlags.sweep, "sweep", false, "sweep cluster counts and keep the best by silhouette")
	flags.IntVar(&clusterFlags.minK, "min-k", 2, "smallest cluster count for --sweep")
	flags.IntVar(&clusterFlags.maxK, "max-k", 10, "largest cluster count for --sweep")
	flags.StringVar(&clusterFlags.start, "start", "", "only cluster articles received on or after this date (YYYY-MM-DD)")
	flags.StringVar(&clusterFlags.end, "end", "", "only cluster articles received on or before this date (YYYY-MM-DD)")
	flags.Int64Var(&clusterFlags.seed, "seed", 42, "random seed")
}

// clusterResult is the run record consumed by report generation.
type clusterResult struct {
	Method  string         `json:"method"`
	Metric  string         `json:"metric"`
	Outcome ClusterOutcome `json:"outcome"`
	Quality QualityScore   `json:"quality"`
	Groups  []GroupRow     `json:"groups"`
}

// buildClusterInput prepares the matrices for the chosen metric. The Jaccard
// path keeps only articles with resolved references, since an unresolved
// article has similarity zero with everything and only adds noise. The
// Euclidean path encodes every article over the shared reference universe.
func buildClusterInput(docs []Document, metric Metric, logger zerolog.Logger) (ClusterInput, []string) {
	if metric == MetricJaccardPrecomputed {
		kept := WithReferences(docs)
		similarity := BuildSimilarityMatrix(kept, logger)
		titles := make([]string, len(kept))
		for i, doc := range kept {
			titles[i] = doc.Title
		}
		return ClusterInput{Distances: similarity.AsDistance()}, titles
	}

	universe := ReferenceUniverse(docs)
	features := EncodeFeatures(docs, universe)
	titles := make([]string, len(docs))
	for i, doc := range docs {
		titles[i] = doc.Title
	}
	return ClusterInput{Features: features}, titles
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// writeGroupCSV writes the Group,Title listing for spreadsheet review.
func writeGroupCSV(path string, groups []GroupRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"Group", "Title"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range groups {
		if err := w.Write([]string{strconv.Itoa(row.Group), row.Title}); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
