package citethread

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const gmailBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// Scholar alert sender addresses recognized by the message query.
const scholarAlertSender = "scholaralerts-noreply@google.com"

// AlertMessage is one saved alert email: the subject line carries the cited
// author, the HTML body carries the article listings.
type AlertMessage struct {
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	Received string `json:"received"`
	BodyHTML string `json:"body_html"`
}

// GmailClient calls the Gmail REST API with a caller-supplied access token.
// The OAuth handshake happens outside this tool; only the resulting bearer
// token is consumed here.
type GmailClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewGmailClient creates a client with a sensible request timeout.
func NewGmailClient(token string) *GmailClient {
	return &GmailClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    gmailBaseURL,
		token:      token,
	}
}

// FetchAlertsCmd: queries Gmail for scholar alert emails, saves alerts/<id>.json
var FetchAlertsCmd = &cobra.Command{
	Use:   "fetch-alerts",
	Short: "Fetch scholar alert emails from Gmail",
	Run: func(cmd *cobra.Command, args []string) {
		logger := NewLogger("fetch-alerts")

		if err := os.MkdirAll("alerts", 0755); err != nil {
			logger.Error().Err(err).Msg("failed to create alerts directory")
			return
		}

		client := NewGmailClient(Config.GmailAccessToken)
		ids, err := client.AlertMessageIDs(Config.AlertLookback)
		if err != nil {
			logger.Error().Err(err).Msg("failed to list alert messages")
			return
		}
		logger.Info().Int("messages", len(ids)).Msg("alert messages found")

		var g errgroup.Group
		g.SetLimit(8)
		for _, id := range ids {
			g.Go(func() error {
				message, err := client.Message(id)
				if err != nil {
					return fmt.Errorf("message %s: %w", id, err)
				}
				return saveAlertMessage(message)
			})
		}
		if err := g.Wait(); err != nil {
			logger.Error().Err(err).Msg("failed to fetch alert messages")
			return
		}
		logger.Info().Msg("alert fetch complete")
	},
}

// AlertMessageIDs queries Gmail for alert messages inside the lookback window,
// following nextPageToken until the listing is exhausted.
func (c *GmailClient) AlertMessageIDs(lookback time.Duration) ([]string, error) {
	lookbackDays := int(lookback.Hours() / 24)
	if lookbackDays < 1 {
		lookbackDays = 1
	}

	var ids []string
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("q", fmt.Sprintf("from:%s newer_than:%dd", scholarAlertSender, lookbackDays))
		params.Set("maxResults", "100")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		body, err := c.get(fmt.Sprintf("%s/messages?%s", c.baseURL, params.Encode()))
		if err != nil {
			return nil, err
		}

		var listResult struct {
			Messages []struct {
				ID string `json:"id"`
			} `json:"messages"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := json.Unmarshal(body, &listResult); err != nil {
			return nil, fmt.Errorf("failed to decode message list: %w", err)
		}

		for _, m := range listResult.Messages {
			ids = append(ids, m.ID)
		}
		if listResult.NextPageToken == "" {
			return ids, nil
		}
		pageToken = listResult.NextPageToken
	}
}

// gmailPart mirrors the recursive MIME tree of a Gmail message payload.
type gmailPart struct {
	MimeType string `json:"mimeType"`
	Body     struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []gmailPart `json:"parts"`
}

// Message downloads one message and pulls out subject, received date and the
// decoded HTML body.
func (c *GmailClient) Message(id string) (AlertMessage, error) {
	body, err := c.get(fmt.Sprintf("%s/messages/%s?format=full", c.baseURL, id))
	if err != nil {
		return AlertMessage{}, err
	}

	var messageResult struct {
		ID      string `json:"id"`
		Payload struct {
			Headers []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"headers"`
			gmailPart
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &messageResult); err != nil {
		return AlertMessage{}, fmt.Errorf("failed to decode message: %w", err)
	}

	message := AlertMessage{ID: messageResult.ID}
	for _, header := range messageResult.Payload.Headers {
		switch header.Name {
		case "Subject":
			message.Subject = header.Value
		case "Date":
			if received, err := mail.ParseDate(header.Value); err == nil {
				message.Received = received.Format("2006-01-02")
			}
		}
	}

	encoded := findHTMLPart(messageResult.Payload.gmailPart)
	if encoded == "" {
		return AlertMessage{}, fmt.Errorf("message %s has no HTML body", id)
	}
	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(encoded)
	if err != nil {
		return AlertMessage{}, fmt.Errorf("failed to decode message body: %w", err)
	}
	message.BodyHTML = string(decoded)

	return message, nil
}

// findHTMLPart walks the MIME tree for the first text/html body.
func findHTMLPart(part gmailPart) string {
	if part.MimeType == "text/html" && part.Body.Data != "" {
		return part.Body.Data
	}
	for _, child := range part.Parts {
		if data := findHTMLPart(child); data != "" {
			return data
		}
	}
	return ""
}

// get performs an authenticated GET against the Gmail REST API.
func (c *GmailClient) get(requestURL string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Gmail API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Gmail API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// saveAlertMessage saves an alert as alerts/<id>.json
func saveAlertMessage(message AlertMessage) error {
	data, err := json.MarshalIndent(message, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	path := filepath.Join("alerts", message.ID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write alert file: %w", err)
	}
	return nil
}
