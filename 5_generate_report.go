package citethread

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/report.html
var htmlTemplate string

//go:embed templates/styles.css
var cssStyles string

// CitationThread is one cluster of articles prepared for the report.
type CitationThread struct {
	Group    int
	Name     string
	Summary  string
	Articles []Article
}

// ThreadNaming is the structured response requested from OpenAI when naming a
// thread. Fields carry schema descriptions the model sees.
type ThreadNaming struct {
	Name    string `json:"name" jsonschema:"description=A short topical name for this group of related research articles"`
	Summary string `json:"summary" jsonschema:"description=One or two sentences describing the shared research theme"`
}

var GenerateReportCmd = &cobra.Command{
	Use:   "generate-report",
	Short: "Generate the citation thread report in markdown and HTML",
	Run: func(cmd *cobra.Command, args []string) {
		logger := NewLogger("generate-report")

		threads, quality, err := loadThreads(logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to load clustering results")
			return
		}

		report := formatThreadReport(threads, quality)
		if err := os.WriteFile("report.md", []byte(report), 0644); err != nil {
			logger.Error().Err(err).Msg("failed to write markdown report")
			return
		}
		logger.Info().Str("file", "report.md").Msg("markdown report generated")

		htmlContent, err := renderReportHTML(report)
		if err != nil {
			logger.Error().Err(err).Msg("failed to render HTML report")
			return
		}
		if err := os.WriteFile("report.html", []byte(htmlContent), 0644); err != nil {
			logger.Error().Err(err).Msg("failed to write HTML report")
			return
		}
		logger.Info().Str("file", "report.html").Msg("HTML report generated")
	},
}

// loadThreads joins the clustering output back to the stored article rows and
// names each thread, via OpenAI when a key is configured.
func loadThreads(logger zerolog.Logger) ([]CitationThread, QualityScore, error) {
	data, err := os.ReadFile(filepath.Join("clusters", "groups.json"))
	if err != nil {
		return nil, QualityScore{}, fmt.Errorf("failed to read clustering results: %w", err)
	}
	var result clusterResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, QualityScore{}, fmt.Errorf("failed to parse clustering results: %w", err)
	}

	db, err := openArticleDB(articleDBPath)
	if err != nil {
		return nil, QualityScore{}, fmt.Errorf("failed to open article database: %w", err)
	}
	defer db.Close()

	articles, err := articlesBetween(db, "", "")
	if err != nil {
		return nil, QualityScore{}, fmt.Errorf("failed to load articles: %w", err)
	}
	byTitle := make(map[string]Article, len(articles))
	for _, article := range articles {
		byTitle[article.Title] = article
	}

	grouped := make(map[int][]Article)
	for _, row := range result.Groups {
		article, ok := byTitle[row.Title]
		if !ok {
			article = Article{Title: row.Title}
		}
		grouped[row.Group] = append(grouped[row.Group], article)
	}

	groups := make([]int, 0, len(grouped))
	for group := range grouped {
		groups = append(groups, group)
	}
	sort.Ints(groups)

	threads := make([]CitationThread, 0, len(groups))
	for _, group := range groups {
		thread := CitationThread{Group: group, Articles: grouped[group]}
		thread.Name, thread.Summary = nameThread(thread, logger)
		threads = append(threads, thread)
	}
	return threads, result.Quality, nil
}

// nameThread gives a thread a topical name. Without an API key the thread is
// named after its first article, which is good enough for a quick read.
func nameThread(thread CitationThread, logger zerolog.Logger) (string, string) {
	fallback := fmt.Sprintf("Thread %d: %s", thread.Group+1, truncateTitle(thread.Articles[0].Title))
	if Config.OpenAIAPIKey == "" || len(thread.Articles) < 2 {
		return fallback, ""
	}

	naming, err := nameThreadWithAI(thread)
	if err != nil {
		logger.Warn().Err(err).Int("group", thread.Group).Msg("thread naming failed, using first title")
		return fallback, ""
	}
	return naming.Name, naming.Summary
}

// nameThreadWithAI asks OpenAI for a structured name and summary of the thread.
func nameThreadWithAI(thread CitationThread) (ThreadNaming, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemaObj := reflector.Reflect(&ThreadNaming{})
	if schemaObj.Type == "" {
		schemaObj.Type = "object"
	}

	schemaBytes, err := json.Marshal(schemaObj)
	if err != nil {
		return ThreadNaming{}, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schema any
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return ThreadNaming{}, fmt.Errorf("failed to unmarshal schema: %w", err)
	}

	var listing strings.Builder
	for _, article := range thread.Articles {
		fmt.Fprintf(&listing, "- %s", article.Title)
		if article.Abstract != "" {
			fmt.Fprintf(&listing, ": %s", article.Abstract)
		}
		listing.WriteString("\n")
	}

	client := openai.NewClient(option.WithAPIKey(Config.OpenAIAPIKey))
	chatCompletion, err := client.Chat.Completions.New(context.TODO(), openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You name groups of research articles that cite overlapping prior work. Given the article titles and snippets, produce a short topical name and a one or two sentence summary of the shared theme."),
			openai.UserMessage(fmt.Sprintf("Name this group of related articles:\n\n%s", listing.String())),
		},
		Model:       openai.ChatModelGPT4_1,
		MaxTokens:   openai.Int(300),
		Temperature: openai.Float(0.1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "thread_naming",
					Description: openai.String("Name a group of related research articles"),
					Schema:      schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return ThreadNaming{}, fmt.Errorf("failed to call OpenAI API: %w", err)
	}
	if len(chatCompletion.Choices) == 0 || chatCompletion.Choices[0].Message.Content == "" {
		return ThreadNaming{}, fmt.Errorf("no content in naming response")
	}

	var naming ThreadNaming
	if err := json.Unmarshal([]byte(chatCompletion.Choices[0].Message.Content), &naming); err != nil {
		return ThreadNaming{}, fmt.Errorf("failed to parse naming response: %w", err)
	}
	return naming, nil
}

func truncateTitle(title string) string {
	const limit = 60
	if len(title) <= limit {
		return title
	}
	return title[:limit] + "..."
}

// formatThreadReport renders the markdown report: a header with the partition
// quality, then one section per thread listing its articles.
func formatThreadReport(threads []CitationThread, quality QualityScore) string {
	var b strings.Builder
	b.WriteString("# Citation Threads\n\n")
	fmt.Fprintf(&b, "*Report generated %s*\n\n", time.Now().Format("2 January 2006"))

	if quality.Defined {
		fmt.Fprintf(&b, "Partition quality: silhouette %.3f, Davies-Bouldin %.3f, Calinski-Harabasz %.3f\n\n",
			quality.Silhouette, quality.DaviesBouldin, quality.CalinskiHarabasz)
	} else if quality.Reason != "" {
		fmt.Fprintf(&b, "Partition quality not available: %s\n\n", quality.Reason)
	}

	if len(threads) == 0 {
		b.WriteString("No articles to report.\n")
		return b.String()
	}

	for i, thread := range threads {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, thread.Name)
		if thread.Summary != "" {
			fmt.Fprintf(&b, "%s\n\n", thread.Summary)
		}
		for _, article := range thread.Articles {
			if article.Link != "" {
				fmt.Fprintf(&b, "- [%s](%s)", article.Title, article.Link)
			} else {
				fmt.Fprintf(&b, "- %s", article.Title)
			}
			if article.Author != "" {
				fmt.Fprintf(&b, " - %s", article.Author)
			}
			if article.CitedAuthor != "" {
				fmt.Fprintf(&b, " (cites %s)", article.CitedAuthor)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n---\n\n")
	}
	return b.String()
}

// renderReportHTML converts the markdown report into a standalone HTML page
// with embedded styles.
func renderReportHTML(markdownContent string) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Table,
			extension.Linkify,
			extension.Strikethrough,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
			goldmarkhtml.WithXHTML(),
			goldmarkhtml.WithUnsafe(),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdownContent), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown to HTML: %w", err)
	}

	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML template: %w", err)
	}

	data := struct {
		Title string
		Date  string
		Body  template.HTML
		CSS   template.CSS
	}{
		Title: "Citation Threads",
		Date:  time.Now().Format("2 January 2006"),
		Body:  template.HTML(buf.String()),
		CSS:   template.CSS(cssStyles),
	}

	var result bytes.Buffer
	if err := tmpl.Execute(&result, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return result.String(), nil
}
