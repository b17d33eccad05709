// Package ollama provides a Completer backed by a local Ollama server.
package ollama

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"council/model"
)

// DefaultHostURL is used when no host is configured.
const DefaultHostURL = "http://localhost:11434"

// Options configure the Ollama adapter.
type Options struct {
	Model       string
	Temperature float64
	HostURL     string
	HTTPClient  *http.Client
}

// Completer wraps the Ollama chat API behind the model.Completer interface.
type Completer struct {
	client *api.Client
	opts   Options
}

// New creates an Ollama completer. An invalid host URL falls back to the
// default local server address.
func New(optFns ...func(o *Options)) *Completer {
	opts := Options{
		Model:       "llama3.1",
		Temperature: 0.7,
		HostURL:     DefaultHostURL,
		HTTPClient:  http.DefaultClient,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	parsed, err := url.Parse(opts.HostURL)
	if err != nil || parsed.Host == "" {
		parsed, _ = url.Parse(DefaultHostURL)
	}
	return &Completer{client: api.NewClient(parsed, opts.HTTPClient), opts: opts}
}

// Complete implements model.Completer using the non-streaming chat endpoint.
func (c *Completer) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	messages := make([]api.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}

	temperature := c.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	options := map[string]any{"temperature": temperature}
	if req.MaxOutputTokens > 0 {
		options["num_predict"] = req.MaxOutputTokens
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.opts.Model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
	if req.StructuredOutput {
		chatReq.Format = []byte(`"json"`)
	}

	var last api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		last = resp
		return nil
	})
	if err != nil {
		return model.Response{}, model.ClassifyProviderError("ollama", err)
	}

	finishReason := last.DoneReason
	if finishReason == "" && last.Done {
		finishReason = "stop"
	}

	return model.Response{
		Text:         last.Message.Content,
		Model:        c.opts.Model,
		FinishReason: finishReason,
		InputTokens:  last.Metrics.PromptEvalCount,
		OutputTokens: last.Metrics.EvalCount,
	}, nil
}

// Info returns metadata describing this Ollama backend.
func (c *Completer) Info() model.Info {
	return model.Info{Name: c.opts.Model, Provider: "ollama"}
}
