package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/podiumhq/podium/internal/config"
	"github.com/podiumhq/podium/internal/metrics"
	"github.com/podiumhq/podium/internal/responses"
)

// OpenAIClient implements Client against an OpenAI-compatible
// chat-completions API (OpenAI itself, or any gateway speaking the same
// dialect).
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func NewOpenAIClient(cfg config.ProviderConfig) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *OpenAIClient) Name() string  { return "openai" }
func (c *OpenAIClient) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *usagePayload) toUsage() *responses.Usage {
	if u == nil {
		return nil
	}
	return &responses.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

func (c *OpenAIClient) StreamChat(ctx context.Context, prompt string, onDelta func(delta string) error) (*StreamResult, error) {
	start := time.Now()

	payload := map[string]any{
		"model":          c.model,
		"messages":       []chatMessage{{Role: "user", Content: prompt}},
		"stream":         true,
		"stream_options": map[string]any{"include_usage": true},
	}

	resp, err := c.post(ctx, "/chat/completions", payload)
	if err != nil {
		metrics.ProviderRequestDuration.WithLabelValues("stream", "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()

	result := &StreamResult{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
			Usage *usagePayload `json:"usage"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// A malformed keepalive frame is not worth killing the stream over.
			continue
		}

		// Usage arrives on the final frame, after the last content delta.
		if chunk.Usage != nil {
			result.Usage = chunk.Usage.toUsage()
		}

		for _, choice := range chunk.Choices {
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				result.FinishReason = *choice.FinishReason
			}
			if choice.Delta.Content == "" {
				continue
			}
			if err := onDelta(choice.Delta.Content); err != nil {
				metrics.ProviderRequestDuration.WithLabelValues("stream", "aborted").Observe(time.Since(start).Seconds())
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		metrics.ProviderRequestDuration.WithLabelValues("stream", "error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: reading stream: %v", ErrProvider, err)
	}

	metrics.ProviderRequestDuration.WithLabelValues("stream", "ok").Observe(time.Since(start).Seconds())
	return result, nil
}

func (c *OpenAIClient) GenerateObject(ctx context.Context, prompt string, maxTokens int) (*ObjectResult, error) {
	start := time.Now()

	payload := map[string]any{
		"model":           c.model,
		"messages":        []chatMessage{{Role: "user", Content: prompt}},
		"response_format": map[string]string{"type": "json_object"},
	}
	if maxTokens > 0 {
		payload["max_tokens"] = maxTokens
	}

	resp, err := c.post(ctx, "/chat/completions", payload)
	if err != nil {
		metrics.ProviderRequestDuration.WithLabelValues("object", "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage *usagePayload `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.ProviderRequestDuration.WithLabelValues("object", "error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: decoding completion: %v", ErrProvider, err)
	}
	if len(body.Choices) == 0 {
		metrics.ProviderRequestDuration.WithLabelValues("object", "error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: completion returned no choices", ErrProvider)
	}

	metrics.ProviderRequestDuration.WithLabelValues("object", "ok").Observe(time.Since(start).Seconds())
	return &ObjectResult{
		Text:         body.Choices[0].Message.Content,
		FinishReason: body.Choices[0].FinishReason,
		Usage:        body.Usage.toUsage(),
	}, nil
}

func (c *OpenAIClient) post(ctx context.Context, path string, payload map[string]any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling %s: %v", ErrProvider, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned status %s: %s",
			ErrProvider, path, strconv.Itoa(resp.StatusCode), strings.TrimSpace(string(body)))
	}
	return resp, nil
}
