package core

import (
	"context"

	"github.com/google/uuid"
)

// Role categorizes decision providers by the kind of work they answer for.
// Multiple providers may register under the same role; the pool load-balances
// between them.
type Role string

const (
	// RoleScenarioGenerator answers world generation stages (stores, NPCs,
	// item placement, target selection).
	RoleScenarioGenerator Role = "scenario_generator"
	// RoleNPCAdmin answers NPC behavior requests (reaction, idle, decision,
	// interaction).
	RoleNPCAdmin Role = "npc_admin"
	// RoleGameMaster evaluates actions and resolves conflicts.
	RoleGameMaster Role = "game_master"
	// RoleJudge scores completed scenario runs.
	RoleJudge Role = "judge"
	// RoleStoryteller produces narrative and environmental text.
	RoleStoryteller Role = "storyteller"
	// RoleCustom is reserved for user-defined providers.
	RoleCustom Role = "custom"
)

// Request is the envelope sent to a decision provider. Context carries
// action-specific data (NPC state, batched events, template constraints) and
// is never mutated by the provider.
type Request struct {
	ID      string         `json:"request_id"`
	Role    Role           `json:"role"`
	Action  string         `json:"action"`
	Context map[string]any `json:"context"`
}

// NewRequest builds a request with a fresh unique id.
func NewRequest(role Role, action string, context map[string]any) Request {
	if context == nil {
		context = map[string]any{}
	}
	return Request{ID: NewID(), Role: role, Action: action, Context: context}
}

// Usage captures token accounting reported by an LLM-backed provider, when
// available. Zero for rule-based providers.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Metadata records provenance for a response: which provider produced it and
// with what backing model.
type Metadata struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Usage    *Usage `json:"usage,omitempty"`
}

// Response is a provider's answer to a Request. Failures are expressed as
// Success=false with an error kind in Result["error"]; providers never raise
// errors to the caller for upstream problems, so a dispatch site only has to
// branch on Success.
type Response struct {
	RequestID string         `json:"request_id"`
	Role      Role           `json:"role"`
	Action    string         `json:"action"`
	Success   bool           `json:"success"`
	Result    map[string]any `json:"result"`
	Reasoning string         `json:"reasoning,omitempty"`
	Metadata  Metadata       `json:"metadata"`
}

// FailureResponse builds the uniform failure shape for a request. The kind is
// a stable machine-readable tag ("not_connected", "timeout", "no_provider",
// "upstream_error", "parse_error"); msg is free text for logs.
func FailureResponse(req Request, kind, msg string) Response {
	return Response{
		RequestID: req.ID,
		Role:      req.Role,
		Action:    req.Action,
		Success:   false,
		Result:    map[string]any{"error": kind, "message": msg},
	}
}

// Provider is the single capability interface every decision backend
// implements, whether rule-based or LLM-backed. Implementations must:
//
//   - keep Handle safe for concurrent calls from multiple in-flight requests
//   - confine side effects to their own session/connection state; world state
//     is mutated only by the engine applying a Response
//   - map "not connected" and upstream provider errors to Success=false
//     responses rather than returned errors or panics
//
// Listen is a long-lived liveness loop (periodic health probe) that keeps
// Connected() current without ever blocking Handle callers. It returns when
// ctx is cancelled.
type Provider interface {
	Name() string
	Role() Role
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Connected() bool
	Handle(ctx context.Context, req Request) Response
	Listen(ctx context.Context)
}

// NewID generates a unique identifier for requests, events and instances.
func NewID() string { return uuid.NewString() }
