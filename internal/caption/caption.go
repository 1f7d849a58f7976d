// Package caption is the client of the image-captioning model-serving endpoint.
package caption

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	errx "github.com/retailchat-ai/server/internal/core/error"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

// Config is processed by envconfig under the CAPTION_ prefix.
type Config struct {
	Endpoint string        `required:"true"`
	Token    string
	Timeout  time.Duration `default:"10m"`
	// Prompt overrides the endpoint's built-in fashion prompt when set.
	Prompt string
}

type Client struct {
	endpoint string
	token    string
	prompt   string
	http     *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		prompt:   strings.TrimSpace(cfg.Prompt),
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

type record struct {
	Content string `json:"content"`
	Prompt  string `json:"prompt,omitempty"`
}

type request struct {
	DataframeRecords []record `json:"dataframe_records"`
	ClientRequestID  string   `json:"client_request_id"`
}

type response struct {
	Predictions []json.RawMessage `json:"predictions"`
}

// Caption submits a base64 image and returns the first prediction verbatim.
// The prompt column is only sent when prompt or CAPTION_PROMPT is set.
func (c *Client) Caption(ctx context.Context, imageBase64, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = c.prompt
	}
	reqID := uuid.NewString()
	body, err := json.Marshal(request{
		DataframeRecords: []record{{Content: imageBase64, Prompt: prompt}},
		ClientRequestID:  reqID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal caption request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errx.Config("invalid captioning endpoint", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.SetBasicAuth("token", c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logx.Error().Err(err).Str("client_request_id", reqID).Msg("captioning request failed")
		return "", errx.Upstream("the image captioning service did not respond", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", errx.Upstream("the image captioning service response could not be read", err)
	}
	logx.Debug().
		Str("client_request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("captioning response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errx.Upstream(
			fmt.Sprintf("the image captioning service returned %d", resp.StatusCode),
			fmt.Errorf("caption status %d: %s", resp.StatusCode, snippet(raw)),
		)
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errx.Upstream("the image captioning service returned malformed JSON", err)
	}
	if len(out.Predictions) == 0 {
		return "", errx.Upstream("the image captioning service returned no prediction", nil)
	}

	first := out.Predictions[0]
	var s string
	if err := json.Unmarshal(first, &s); err == nil {
		return s, nil
	}
	return string(first), nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
