package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mailsift/mailsift/internal/provider"
)

// Client talks to an Ollama-compatible inference server.
type Client struct {
	server     string
	model      string
	httpClient *http.Client
}

// NewClient validates the inference settings and builds a client.
// timeout zero means no per-call bound beyond the context.
func NewClient(server, model string, timeout time.Duration) (*Client, error) {
	if server == "" {
		return nil, &provider.NotConfiguredError{What: "AI server"}
	}
	if model == "" {
		return nil, &provider.NotConfiguredError{What: "AI model"}
	}
	return &Client{
		server:     strings.TrimRight(server, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate runs one non-streaming completion and returns the model text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("encoding inference request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling inference server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &provider.ProviderError{
			Op:     "generate",
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(data))),
		}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding inference response: %w", err)
	}
	return out.Response, nil
}
