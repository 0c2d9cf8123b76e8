// Package inference adapts the Anthropic Message Batches API to the batch scoring pipeline
package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Processing states reported by the batch status endpoint
const (
	StatusInProgress = string(anthropic.MessageBatchProcessingStatusInProgress)
	StatusCanceling  = string(anthropic.MessageBatchProcessingStatusCanceling)
	StatusEnded      = string(anthropic.MessageBatchProcessingStatusEnded)
)

// Result outcomes
const (
	OutcomeSucceeded = "succeeded"
	OutcomeErrored   = "errored"
	OutcomeCanceled  = "canceled"
	OutcomeExpired   = "expired"
)

// Request is one prompt inside a batch
type Request struct {
	CustomID string
	Prompt   string
}

// BatchStatus is the state of a submitted batch
type BatchStatus struct {
	ID               string
	ProcessingStatus string
	ResultsURL       string
}

// Ended reports whether results can be fetched
func (s BatchStatus) Ended() bool {
	return s.ProcessingStatus == StatusEnded
}

// Result is one line of a batch result stream
type Result struct {
	CustomID string
	Outcome  string
	Text     string
	Error    string
}

// Succeeded reports whether the request produced a message
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inference API returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the Message Batches API through the Anthropic SDK
type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int
}

// NewClient creates a new batch inference client. A nil httpClient gets a client with a 60s timeout.
// Extra SDK options are applied after the defaults.
func NewClient(baseURL, apiKey, model string, maxTokens int, httpClient *http.Client, opts ...option.RequestOption) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
	}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}

	return &Client{
		sdk:       anthropic.NewClient(append(base, opts...)...),
		model:     model,
		maxTokens: maxTokens,
	}
}

// CreateBatch submits all requests in one batch and returns the batch handle
func (c *Client) CreateBatch(ctx context.Context, requests []Request) (string, error) {
	if len(requests) == 0 {
		return "", fmt.Errorf("batch must contain at least one request")
	}

	params := anthropic.MessageBatchNewParams{
		Requests: make([]anthropic.MessageBatchNewParamsRequest, 0, len(requests)),
	}
	for _, r := range requests {
		params.Requests = append(params.Requests, anthropic.MessageBatchNewParamsRequest{
			CustomID: r.CustomID,
			Params: anthropic.MessageBatchNewParamsRequestParams{
				Model:     anthropic.Model(c.model),
				MaxTokens: int64(c.maxTokens),
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(r.Prompt)),
				},
			},
		})
	}

	batch, err := c.sdk.Messages.Batches.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create batch: %w", wrapError(err))
	}
	if batch.ID == "" {
		return "", fmt.Errorf("failed to create batch: response has no batch id")
	}
	return batch.ID, nil
}

// GetBatchStatus retrieves the processing state of a batch
func (c *Client) GetBatchStatus(ctx context.Context, handle string) (*BatchStatus, error) {
	batch, err := c.sdk.Messages.Batches.Get(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %s: %w", handle, wrapError(err))
	}

	return &BatchStatus{
		ID:               batch.ID,
		ProcessingStatus: string(batch.ProcessingStatus),
		ResultsURL:       batch.ResultsURL,
	}, nil
}

// GetResults streams the JSONL results of an ended batch. A line that cannot be decoded
// aborts the read so the batch is fetched again on the next poll.
func (c *Client) GetResults(ctx context.Context, handle string) ([]Result, error) {
	stream := c.sdk.Messages.Batches.ResultsStreaming(ctx, handle)
	defer stream.Close()

	var results []Result
	for stream.Next() {
		line := stream.Current()

		result := Result{CustomID: line.CustomID, Outcome: line.Result.Type}
		var text strings.Builder
		for _, block := range line.Result.Message.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		result.Text = text.String()
		result.Error = line.Result.Error.Error.Message
		results = append(results, result)
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results of batch %s: %w", handle, wrapError(err))
	}

	return results, nil
}

// wrapError converts SDK status errors into APIError so callers do not depend on the SDK types
func wrapError(err error) error {
	var sdkErr *anthropic.Error
	if errors.As(err, &sdkErr) {
		return &APIError{StatusCode: sdkErr.StatusCode, Body: sdkErr.Error()}
	}
	return err
}
