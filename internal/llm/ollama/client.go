package ollama

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/JexSrs/go-ollama"

	"vendorsec-backend/internal/llm"
)

const defaultModel = "llama3.1"

// Client implements llm.Client against a local Ollama server.
type Client struct {
	client *ollama.Ollama
	model  string
}

// NewClient connects to host, e.g. http://localhost:11434.
func NewClient(host, model string) (*Client, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	return &Client{client: ollama.New(*u), model: model}, nil
}

func (c *Client) Provider() string { return "ollama" }

func (c *Client) Model() string { return c.model }

// Complete sends the conversation as a single Generate request. Generate is
// synchronous, so ctx is only checked before the call.
func (c *Client) Complete(ctx context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	system, prompt := flatten(msgs)
	if opts.JSON {
		system += "\nRespond ONLY with one valid JSON object."
	}

	res, err := c.client.Generate(
		c.client.Generate.WithModel(c.model),
		c.client.Generate.WithSystem(strings.TrimSpace(system)),
		c.client.Generate.WithPrompt(prompt),
	)
	if err != nil {
		return "", llm.Transient(fmt.Errorf("ollama generate: %w", err))
	}
	if !res.Done {
		return "", fmt.Errorf("ollama generate not finished: %w", llm.ErrMalformedOutput)
	}
	out := strings.TrimSpace(strings.Trim(res.Response, "`"))
	if out == "" {
		return "", fmt.Errorf("ollama empty response: %w", llm.ErrMalformedOutput)
	}
	return out, nil
}

// Stream returns the complete response as a single fragment.
func (c *Client) Stream(ctx context.Context, msgs []llm.Message, opts llm.Options) (llm.Stream, error) {
	out, err := c.Complete(ctx, msgs, opts)
	if err != nil {
		return nil, err
	}
	return llm.SliceStream(out), nil
}

// flatten folds system messages into the system prompt and renders the rest
// as a transcript, since Generate takes a single prompt.
func flatten(msgs []llm.Message) (string, string) {
	var system, prompt strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			system.WriteString(m.Content)
			system.WriteString("\n")
		case llm.RoleAssistant:
			prompt.WriteString("Assistant: ")
			prompt.WriteString(m.Content)
			prompt.WriteString("\n\n")
		default:
			prompt.WriteString("User: ")
			prompt.WriteString(m.Content)
			prompt.WriteString("\n\n")
		}
	}
	if len(msgs) > 0 && msgs[len(msgs)-1].Role != llm.RoleSystem {
		prompt.WriteString("Assistant:")
	}
	return system.String(), prompt.String()
}

var _ llm.Client = (*Client)(nil)
