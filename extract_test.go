package citethread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAlertHTML = `
<html><body>
<h3><a class="gse_alrt_title" href="http://example.org/paper-one">Deep learning for citation networks</a></h3>
<div style="color:#006621;line-height:18px">J Smith, A Jones - Journal of Examples, 2026</div>
<div class="gse_alrt_sni">We propose a method for analysing citation <br>networks with deep learning.</div>
<div><a href="http://scholar.google.com/save?one"><img alt="Save" src="save.gif"></a></div>
<h3><a class="gse_alrt_title" href="http://example.org/paper-two">Graph models of scholarly influence</a></h3>
<div style="color:#006621;line-height:18px">B Lee - Preprint, 2026</div>
<div class="gse_alrt_sni">A graph model of influence between papers.</div>
<div><a href="http://scholar.google.com/save?two"><img alt="Save" src="save.gif"></a></div>
</body></html>`

func TestParseAlertHTML(t *testing.T) {
	articles, err := parseAlertHTML(sampleAlertHTML)
	require.NoError(t, err)
	require.Len(t, articles, 2)

	first := articles[0]
	assert.Equal(t, "Deep learning for citation networks", first.Title)
	assert.Equal(t, "http://example.org/paper-one", first.Link)
	assert.Equal(t, "J Smith, A Jones - Journal of Examples, 2026", first.Author)
	assert.Equal(t, "We propose a method for analysing citation networks with deep learning.", first.Abstract)
	assert.Equal(t, "http://scholar.google.com/save?one", first.SaveLink)

	second := articles[1]
	assert.Equal(t, "Graph models of scholarly influence", second.Title)
	assert.Equal(t, "http://scholar.google.com/save?two", second.SaveLink)
}

func TestParseAlertHTMLEmptyBody(t *testing.T) {
	articles, err := parseAlertHTML("<html><body><p>nothing here</p></body></html>")
	require.NoError(t, err)
	assert.Empty(t, articles)
}

func TestCitedAuthorFromSubject(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"1 new citation to articles by John Smith", "John Smith"},
		{"3 new citations to articles by Jane Doe, PhD", "Jane Doe"},
		{"2 new citations to your articles", "Yourself"},
		{"completely unrelated subject", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, citedAuthorFromSubject(tt.subject), tt.subject)
	}
}
