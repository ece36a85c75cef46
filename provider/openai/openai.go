// Package openai implements an LLM-backed decision provider on top of the
// OpenAI Chat Completions API. It mirrors the anthropic provider: JSON-only
// prompts, graceful failure responses, and a periodic liveness probe.
package openai

import (
	"context"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/d-andres/AgenticRealm/core"
	"github.com/d-andres/AgenticRealm/provider/prompt"
)

// Options configure the OpenAI provider.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	ProbeInterval       time.Duration
}

// Provider wraps the OpenAI Chat Completions API behind the core.Provider
// interface.
type Provider struct {
	name   string
	role   core.Role
	client *openai.Client
	opts   Options

	mu        sync.Mutex
	connected bool
}

// New creates an OpenAI provider for the given role using the official client.
func New(name string, role core.Role, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &Provider{name: name, role: role, client: &client, opts: opts}
}

// NewFromClient creates a provider from an existing client.
func NewFromClient(name string, role core.Role, client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{name: name, role: role, client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 2048,
		ProbeInterval:       time.Minute,
	}
}

// Name implements core.Provider.
func (p *Provider) Name() string { return p.name }

// Role implements core.Provider.
func (p *Provider) Role() core.Role { return p.role }

// Connect validates the API key with a minimal completion.
func (p *Provider) Connect(ctx context.Context) error {
	err := p.probe(ctx)
	p.mu.Lock()
	p.connected = err == nil
	p.mu.Unlock()
	return err
}

// Disconnect implements core.Provider.
func (p *Provider) Disconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

// Connected implements core.Provider.
func (p *Provider) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Listen keeps the liveness flag current with a periodic probe. Returns when
// ctx is cancelled.
func (p *Provider) Listen(ctx context.Context) {
	ticker := time.NewTicker(p.opts.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := p.probe(probeCtx)
			cancel()
			p.mu.Lock()
			p.connected = err == nil
			p.mu.Unlock()
		}
	}
}

func (p *Provider) probe(ctx context.Context) error {
	_, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               p.opts.Model,
		MaxCompletionTokens: openai.Int(16),
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage("ping")},
	})
	return err
}

// Handle implements core.Provider. Safe for concurrent use.
func (p *Provider) Handle(ctx context.Context, req core.Request) core.Response {
	if !p.Connected() {
		return core.FailureResponse(req, "not_connected", "openai provider is not connected")
	}
	system, user, ok := prompt.For(req.Action, req.Context)
	if !ok {
		return core.FailureResponse(req, "unknown_action", "no prompt for action "+req.Action)
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               p.opts.Model,
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxCompletionTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return core.FailureResponse(req, "upstream_error", err.Error())
	}
	if len(resp.Choices) == 0 {
		return core.FailureResponse(req, "upstream_error", "no choices returned")
	}

	result, err := prompt.ParseJSON(resp.Choices[0].Message.Content)
	if err != nil {
		return core.FailureResponse(req, "parse_error", err.Error())
	}

	return core.Response{
		RequestID: req.ID,
		Role:      req.Role,
		Action:    req.Action,
		Success:   true,
		Result:    result,
		Reasoning: "generated via OpenAI (" + p.opts.Model + ")",
		Metadata: core.Metadata{
			Provider: p.name,
			Model:    p.opts.Model,
			Usage: &core.Usage{
				PromptTokens:     int(resp.Usage.PromptTokens),
				CompletionTokens: int(resp.Usage.CompletionTokens),
				TotalTokens:      int(resp.Usage.TotalTokens),
			},
		},
	}
}
