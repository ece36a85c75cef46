// Package anthropic implements an LLM-backed decision provider on top of the
// Anthropic Messages API. Every action is answered with a JSON-only prompt;
// responses that fail to parse become structured failure responses rather
// than errors, so a flaky upstream degrades gracefully.
package anthropic

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/d-andres/AgenticRealm/core"
	"github.com/d-andres/AgenticRealm/provider/prompt"
)

// Options configures the Anthropic provider (model id, max tokens,
// temperature, API key, probe cadence).
type Options struct {
	Model         anthropic.Model
	Temperature   float64
	MaxTokens     int64
	APIKey        string
	ProbeInterval time.Duration
}

// Provider wraps the Anthropic Messages API behind the core.Provider
// interface.
type Provider struct {
	name   string
	role   core.Role
	client *anthropic.Client
	opts   Options

	mu        sync.Mutex
	connected bool
}

// New creates an Anthropic provider for the given role using the official
// client.
func New(name string, role core.Role, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:         anthropic.ModelClaude3_5Sonnet20241022,
		Temperature:   0.7,
		MaxTokens:     2048,
		ProbeInterval: time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Provider{name: name, role: role, client: &client, opts: opts}
}

// NewFromClient creates a provider from an existing client.
func NewFromClient(name string, role core.Role, client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:         anthropic.ModelClaude3_5Sonnet20241022,
		Temperature:   0.7,
		MaxTokens:     2048,
		ProbeInterval: time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{name: name, role: role, client: client, opts: opts}
}

// Name implements core.Provider.
func (p *Provider) Name() string { return p.name }

// Role implements core.Provider.
func (p *Provider) Role() core.Role { return p.role }

// Connect validates the API key with a minimal message.
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
// ctx is cancelled. Probes never block Handle callers.
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
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.opts.Model,
		MaxTokens: 16,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("ping"))},
	})
	return err
}

// Handle implements core.Provider. Safe for concurrent use; the underlying
// client is goroutine-safe and the provider holds no per-request state.
func (p *Provider) Handle(ctx context.Context, req core.Request) core.Response {
	if !p.Connected() {
		return core.FailureResponse(req, "not_connected", "anthropic provider is not connected")
	}
	system, user, ok := prompt.For(req.Action, req.Context)
	if !ok {
		return core.FailureResponse(req, "unknown_action", "no prompt for action "+req.Action)
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       p.opts.Model,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
	})
	if err != nil {
		return core.FailureResponse(req, "upstream_error", err.Error())
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	result, err := prompt.ParseJSON(text.String())
	if err != nil {
		return core.FailureResponse(req, "parse_error", err.Error())
	}

	return core.Response{
		RequestID: req.ID,
		Role:      req.Role,
		Action:    req.Action,
		Success:   true,
		Result:    result,
		Reasoning: "generated via Anthropic (" + string(p.opts.Model) + ")",
		Metadata: core.Metadata{
			Provider: p.name,
			Model:    string(p.opts.Model),
			Usage: &core.Usage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
		},
	}
}
