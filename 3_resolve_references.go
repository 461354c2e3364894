package citethread

import (
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// CrossRef's polite pool tolerates short bursts; pause after each batch so a
// large backlog does not trip rate limiting.
const (
	crossRefBatchSize  = 40
	crossRefBatchPause = 2 * time.Second
)

// ResolveReferencesCmd: resolves cited references for stored articles via CrossRef
var ResolveReferencesCmd = &cobra.Command{
	Use:   "resolve-references",
	Short: "Resolve article reference lists through the CrossRef API",
	Run: func(cmd *cobra.Command, args []string) {
		logger := NewLogger("resolve-references")

		db, err := openArticleDB(articleDBPath)
		if err != nil {
			logger.Error().Err(err).Msg("failed to open article database")
			return
		}
		defer db.Close()

		articles, err := articlesWithoutReferences(db)
		if err != nil {
			logger.Error().Err(err).Msg("failed to load unresolved articles")
			return
		}
		if len(articles) == 0 {
			logger.Info().Msg("no unresolved articles")
			return
		}
		logger.Info().Int("articles", len(articles)).Msg("resolving references")

		client := NewCrossRefClient(Config.CrossRefMailto)
		ctx := cmd.Context()

		var done atomic.Int64
		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, article := range articles {
			g.Go(func() error {
				doi, references, err := client.ReferencedWorks(ctx, article.Title)
				if err != nil {
					// One failed lookup should not abandon the whole batch;
					// the article stays unresolved for the next run.
					logger.Error().Err(err).Str("title", article.Title).Msg("reference lookup failed")
					return nil
				}
				if err := updateArticleReferences(db, article.Title, doi, references); err != nil {
					return err
				}

				count := done.Add(1)
				if count%crossRefBatchSize == 0 {
					logger.Info().Int64("resolved", count).Int("total", len(articles)).Msg("lookup progress")
					time.Sleep(crossRefBatchPause)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			logger.Error().Err(err).Msg("failed to store resolved references")
			return
		}
		logger.Info().Int64("resolved", done.Load()).Msg("reference resolution complete")
	},
}
