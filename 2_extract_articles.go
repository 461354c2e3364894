package citethread

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"
)

// citedAuthorPattern captures the author name Google Scholar puts after "by"
// in citation alert subjects, up to the first comma.
var citedAuthorPattern = regexp.MustCompile(`\bby\s+([^,]+)`)

// ExtractArticlesCmd: parses saved alert emails into article rows in SQLite
var ExtractArticlesCmd = &cobra.Command{
	Use:   "extract-articles",
	Short: "Extract article listings from saved alerts into the article store",
	Run: func(cmd *cobra.Command, args []string) {
		logger := NewLogger("extract-articles")

		if err := os.MkdirAll(filepath.Dir(articleDBPath), 0755); err != nil {
			logger.Error().Err(err).Msg("failed to create database directory")
			return
		}
		db, err := openArticleDB(articleDBPath)
		if err != nil {
			logger.Error().Err(err).Msg("failed to open article database")
			return
		}
		defer db.Close()

		files, err := filepath.Glob("alerts/*.json")
		if err != nil {
			logger.Error().Err(err).Msg("failed to list alert files")
			return
		}

		// Dedupe across alerts on title. The same article often appears in
		// alerts for several cited authors; those merge into one row.
		byTitle := make(map[string]Article)
		var order []string

		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				logger.Error().Err(err).Str("file", file).Msg("failed to read alert file")
				continue
			}
			var message AlertMessage
			if err := json.Unmarshal(data, &message); err != nil {
				logger.Error().Err(err).Str("file", file).Msg("failed to decode alert file")
				continue
			}
			if !strings.Contains(strings.ToLower(message.Subject), "new citation") {
				continue
			}

			citedAuthor := citedAuthorFromSubject(message.Subject)
			articles, err := parseAlertHTML(message.BodyHTML)
			if err != nil {
				logger.Error().Err(err).Str("file", file).Msg("failed to parse alert body")
				continue
			}

			for _, article := range articles {
				article.CitedAuthor = citedAuthor
				article.ReceivedDate = message.Received
				existing, ok := byTitle[article.Title]
				if !ok {
					byTitle[article.Title] = article
					order = append(order, article.Title)
					continue
				}
				if !strings.Contains(existing.CitedAuthor, citedAuthor) {
					existing.CitedAuthor += ", " + citedAuthor
					byTitle[article.Title] = existing
				}
			}
		}

		inserted := 0
		for _, title := range order {
			if err := insertArticle(db, byTitle[title]); err != nil {
				logger.Error().Err(err).Str("title", title).Msg("failed to store article")
				continue
			}
			inserted++
		}
		logger.Info().Int("alerts", len(files)).Int("articles", inserted).Msg("article extraction complete")
	},
}

// citedAuthorFromSubject pulls the cited author out of an alert subject line.
// Alerts for the user's own publications say "your articles"; those map to
// the "Yourself" marker.
func citedAuthorFromSubject(subject string) string {
	if strings.Contains(strings.ToLower(subject), "your articles") {
		return "Yourself"
	}
	match := citedAuthorPattern.FindStringSubmatch(subject)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// parseAlertHTML walks a scholar alert email body and collects the article
// listings. Each listing is an anchor with class gse_alrt_title followed by
// an author line (the green #006621 div) and a gse_alrt_sni snippet div.
func parseAlertHTML(body string) ([]Article, error) {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse alert HTML: %w", err)
	}

	var articles []Article
	var current *Article

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if hasClass(n, "gse_alrt_title") {
					if current != nil {
						articles = append(articles, *current)
					}
					current = &Article{
						Title: nodeText(n),
						Link:  attrValue(n, "href"),
					}
				} else if current != nil && containsSaveImage(n) {
					current.SaveLink = attrValue(n, "href")
				}
			case "div":
				if current == nil {
					break
				}
				if strings.Contains(attrValue(n, "style"), "color:#006621") {
					current.Author = nodeText(n)
				} else if hasClass(n, "gse_alrt_sni") {
					current.Abstract = strings.ReplaceAll(nodeText(n), "\n", " ")
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	if current != nil {
		articles = append(articles, *current)
	}
	return articles, nil
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// containsSaveImage reports whether an anchor wraps the alert's Save button.
func containsSaveImage(n *html.Node) bool {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.Data == "img" && attrValue(child, "alt") == "Save" {
			return true
		}
		if containsSaveImage(child) {
			return true
		}
	}
	return false
}

// nodeText concatenates the text content below a node.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
