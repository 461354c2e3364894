package citethread

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const crossRefBaseURL = "https://api.crossref.org/works"

// CrossRefClient queries the CrossRef works endpoint for the cited references
// of an article, matched by bibliographic title. The mailto address joins the
// polite request pool.
type CrossRefClient struct {
	httpClient *http.Client
	baseURL    string
	mailto     string
}

// NewCrossRefClient creates a client with a sensible request timeout.
func NewCrossRefClient(mailto string) *CrossRefClient {
	return &CrossRefClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    crossRefBaseURL,
		mailto:     mailto,
	}
}

// ReferencedWorks resolves the DOI and reference DOIs of the best bibliographic
// match for a title. A work CrossRef knows but has no reference list for comes
// back as the "N/A" sentinel, so the caller can tell "resolved, none known"
// apart from "never resolved".
func (c *CrossRefClient) ReferencedWorks(ctx context.Context, title string) (string, []string, error) {
	params := url.Values{}
	params.Set("query.bibliographic", title)
	params.Set("select", "title,reference,DOI")
	params.Set("rows", "1")
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to call CrossRef: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", nil, fmt.Errorf("CrossRef error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Message struct {
			Items []struct {
				DOI       string `json:"DOI"`
				Reference []struct {
					DOI string `json:"DOI"`
				} `json:"reference"`
			} `json:"items"`
		} `json:"message"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", nil, fmt.Errorf("failed to decode CrossRef response: %w", err)
	}

	if len(result.Message.Items) == 0 {
		return NoReferences, []string{NoReferences}, nil
	}

	item := result.Message.Items[0]
	doi := item.DOI
	if doi == "" {
		doi = NoReferences
	}

	if len(item.Reference) == 0 {
		return doi, []string{NoReferences}, nil
	}
	references := make([]string, 0, len(item.Reference))
	for _, ref := range item.Reference {
		if ref.DOI != "" {
			references = append(references, ref.DOI)
		}
	}
	if len(references) == 0 {
		references = []string{NoReferences}
	}
	return doi, references, nil
}
