// Package upstream is a client for the campaign platform that delivers lead-reply webhooks
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leadpulse/backend/internal/models"
)

// ErrMissingCredential is returned when no API key is available for the request
var ErrMissingCredential = errors.New("upstream API key is required")

// Client fetches lead data from the campaign platform
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new campaign platform client. A nil httpClient gets a client with a 15s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type historyMessage struct {
	Type      string `json:"type"`
	Time      string `json:"time"`
	From      string `json:"from"`
	EmailBody string `json:"email_body"`
}

type historyResponse struct {
	History []historyMessage `json:"history"`
}

// GetMessageHistory returns the full ordered message thread of a lead in a campaign
func (c *Client) GetMessageHistory(ctx context.Context, apiKey, campaignID, leadID string) ([]models.RawMessage, error) {
	if apiKey == "" {
		return nil, ErrMissingCredential
	}
	if campaignID == "" || leadID == "" {
		return nil, fmt.Errorf("campaign id and lead id are required")
	}

	endpoint := fmt.Sprintf("%s/campaigns/%s/leads/%s/message-history?api_key=%s",
		c.baseURL, url.PathEscape(campaignID), url.PathEscape(leadID), url.QueryEscape(apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("message history returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode message history: %w", err)
	}

	messages := make([]models.RawMessage, 0, len(decoded.History))
	for _, m := range decoded.History {
		messages = append(messages, models.RawMessage{
			Type: m.Type,
			Time: m.Time,
			From: m.From,
			Body: m.EmailBody,
		})
	}
	return messages, nil
}
