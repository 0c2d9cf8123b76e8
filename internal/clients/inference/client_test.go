package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedBatch struct {
	Requests []struct {
		CustomID string `json:"custom_id"`
		Params   struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		} `json:"params"`
	} `json:"requests"`
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func newTestClient(url string, httpClient *http.Client) *Client {
	return NewClient(url, "k", "m", 16, httpClient, option.WithMaxRetries(0))
}

func TestClient_CreateBatch(t *testing.T) {
	var received receivedBatch
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages/batches", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		writeJSON(w, http.StatusOK, `{"id":"msgbatch_01","type":"message_batch","processing_status":"in_progress"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret", "test-model", 16, server.Client())

	handle, err := client.CreateBatch(context.Background(), []Request{
		{CustomID: "lead_1", Prompt: "score a"},
		{CustomID: "task_2", Prompt: "score b"},
	})

	require.NoError(t, err)
	assert.Equal(t, "msgbatch_01", handle)
	require.Len(t, received.Requests, 2)
	assert.Equal(t, "lead_1", received.Requests[0].CustomID)
	assert.Equal(t, "test-model", received.Requests[0].Params.Model)
	assert.Equal(t, 16, received.Requests[0].Params.MaxTokens)
	require.Len(t, received.Requests[1].Params.Messages, 1)
	assert.Equal(t, "user", received.Requests[1].Params.Messages[0].Role)
	require.Len(t, received.Requests[1].Params.Messages[0].Content, 1)
	assert.Equal(t, "score b", received.Requests[1].Params.Messages[0].Content[0].Text)
}

func TestClient_CreateBatch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		reqs    []Request
		check   func(*testing.T, error)
	}{
		{
			name: "api error carries status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusTooManyRequests, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
			},
			reqs: []Request{{CustomID: "lead_1", Prompt: "x"}},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
				assert.Contains(t, apiErr.Body, "rate_limit_error")
			},
		},
		{
			name: "missing id",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, `{}`)
			},
			reqs: []Request{{CustomID: "lead_1", Prompt: "x"}},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "no batch id")
			},
		},
		{
			name:    "empty batch",
			handler: func(w http.ResponseWriter, r *http.Request) { t.Fatal("no request expected") },
			check: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := newTestClient(server.URL, server.Client()).CreateBatch(context.Background(), tt.reqs)

			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_GetBatchStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages/batches/msgbatch_01", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"id":"msgbatch_01","type":"message_batch","processing_status":"ended","results_url":"https://x/results"}`)
	}))
	defer server.Close()

	status, err := newTestClient(server.URL, server.Client()).GetBatchStatus(context.Background(), "msgbatch_01")

	require.NoError(t, err)
	assert.True(t, status.Ended())
	assert.Equal(t, "msgbatch_01", status.ID)
	assert.Equal(t, "https://x/results", status.ResultsURL)
}

func TestClient_GetResults(t *testing.T) {
	body := `{"custom_id":"lead_1","result":{"type":"succeeded","message":{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"8"}]}}}
{"custom_id":"lead_2","result":{"type":"errored","error":{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}}}
{"custom_id":"task_3","result":{"type":"expired"}}
`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages/batches/msgbatch_01/results", r.URL.Path)
		w.Header().Set("Content-Type", "application/x-jsonl")
		w.Write([]byte(body))
	}))
	defer server.Close()

	results, err := newTestClient(server.URL, server.Client()).GetResults(context.Background(), "msgbatch_01")

	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "lead_1", results[0].CustomID)
	assert.True(t, results[0].Succeeded())
	assert.Equal(t, "8", results[0].Text)

	assert.Equal(t, OutcomeErrored, results[1].Outcome)
	assert.Equal(t, "Overloaded", results[1].Error)

	assert.Equal(t, "task_3", results[2].CustomID)
	assert.Equal(t, OutcomeExpired, results[2].Outcome)
}

func TestClient_GetResults_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusInternalServerError, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
			},
			status: http.StatusInternalServerError,
		},
		{
			name: "undecodable line",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/x-jsonl")
				w.Write([]byte("{\"custom_id\":\"lead_1\",\"result\":{\"type\":\"expired\"}}\nnot json\n"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			results, err := newTestClient(server.URL, server.Client()).GetResults(context.Background(), "msgbatch_01")

			require.Error(t, err)
			assert.Nil(t, results)
			if tt.status != 0 {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, tt.status, apiErr.StatusCode)
			}
		})
	}
}
