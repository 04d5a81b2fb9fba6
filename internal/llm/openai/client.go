package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"vendorsec-backend/internal/llm"
)

const defaultModel = "gpt-4o-mini"

// Client implements llm.Client on the OpenAI Chat Completions API.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a client. baseURL may point at any OpenAI-compatible endpoint.
func NewClient(apiKey, baseURL, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{api: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (c *Client) Provider() string { return "openai" }

func (c *Client) Model() string { return c.model }

// Complete runs one chat completion.
func (c *Client) Complete(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.request(msgs, opts))
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai response missing choices: %w", llm.ErrMalformedOutput)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("openai response empty content: %w", llm.ErrMalformedOutput)
	}
	return content, nil
}

// Stream opens a streaming chat completion and yields content deltas.
func (c *Client) Stream(ctx context.Context, msgs []llm.Message, opts llm.Options) (llm.Stream, error) {
	req := c.request(msgs, opts)
	req.Stream = true
	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	return &deltaStream{stream: stream}, nil
}

func (c *Client) request(msgs []llm.Message, opts llm.Options) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	// Reasoning models reject max_tokens and custom temperature.
	if isReasoningModel(c.model) {
		req.MaxCompletionTokens = opts.MaxTokens
	} else {
		req.MaxTokens = opts.MaxTokens
		req.Temperature = opts.Temperature
	}
	return req
}

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

type deltaStream struct {
	stream *openai.ChatCompletionStream
}

func (s *deltaStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", classify(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *deltaStream) Close() error {
	return s.stream.Close()
}

// classify marks throttling and server-side failures as transient.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && retryableStatus(apiErr.HTTPStatusCode) {
		return llm.Transient(fmt.Errorf("openai: %w", err))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && retryableStatus(reqErr.HTTPStatusCode) {
		return llm.Transient(fmt.Errorf("openai: %w", err))
	}
	return fmt.Errorf("openai: %w", err)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

var _ llm.Client = (*Client)(nil)
