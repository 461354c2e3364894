package citethread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatThreadReport(t *testing.T) {
	threads := []CitationThread{
		{
			Group:   0,
			Name:    "Citation network methods",
			Summary: "Methods for analysing citation graphs.",
			Articles: []Article{
				{
					Title:       "Deep learning for citation networks",
					Link:        "http://example.org/one",
					Author:      "J Smith",
					CitedAuthor: "John Smith",
				},
				{Title: "Untitled preprint"},
			},
		},
		{
			Group:    1,
			Name:     "Thread 2: Structure prediction",
			Articles: []Article{{Title: "Structure prediction"}},
		},
	}
	quality := QualityScore{Silhouette: 0.42, DaviesBouldin: 0.8, CalinskiHarabasz: 12.5, Defined: true}

	report := formatThreadReport(threads, quality)
	assert.Contains(t, report, "# Citation Threads")
	assert.Contains(t, report, "silhouette 0.420, Davies-Bouldin 0.800, Calinski-Harabasz 12.500")
	assert.Contains(t, report, "## 1. Citation network methods")
	assert.Contains(t, report, "Methods for analysing citation graphs.")
	assert.Contains(t, report, "- [Deep learning for citation networks](http://example.org/one) - J Smith (cites John Smith)")
	assert.Contains(t, report, "- Untitled preprint")
	assert.Contains(t, report, "## 2. Thread 2: Structure prediction")
	// Plain ASCII throughout the generated markdown.
	assert.NotContains(t, report, "—")
}

func TestFormatThreadReportUndefinedQuality(t *testing.T) {
	quality := QualityScore{Reason: "fewer than 2 distinct clusters"}
	report := formatThreadReport(nil, quality)
	assert.Contains(t, report, "Partition quality not available: fewer than 2 distinct clusters")
	assert.Contains(t, report, "No articles to report.")
}

func TestTruncateTitle(t *testing.T) {
	short := "A short title"
	assert.Equal(t, short, truncateTitle(short))

	long := "A title that keeps going well past the sixty character cutoff point"
	truncated := truncateTitle(long)
	require.Len(t, truncated, 63)
	assert.Equal(t, long[:60]+"...", truncated)
}
