// Package agent provides the participant model for the orchestrator:
// agent descriptors, the registry that resolves them, contributed slash
// commands, and participant/command detection.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/chatkit-ai/chatkit/pkg/types"
)

// ProgressFunc receives one unit of incremental handler output.
type ProgressFunc func(part types.ResponsePart)

// InvocationRequest is the fully-prepared envelope passed to a handler.
type InvocationRequest struct {
	SessionID    string
	RequestID    string
	AgentID      string
	Command      string
	Message      string // prompt text with markers stripped
	Parts        []types.MessagePart
	Variables    types.VariableData
	Location     types.Location
	LocationData *types.LocationData
	Confirm      *types.ConfirmData
	Attempt      int
	// EnabledTools is the per-request tool selection, nil meaning all.
	EnabledTools map[string]bool
}

// HistoryEntry is one prior exchange as seen by a handler. The
// orchestrator scopes history per target agent before invoking.
type HistoryEntry struct {
	RequestID string
	Prompt    string
	AgentID   string
	Command   string
	Response  []types.ResponsePart
	Result    *types.Result
}

// Handler produces an answer for a request. Implementations must honor
// ctx cancellation; progress delivered after cancellation is dropped by
// the orchestrator's callback guard.
type Handler interface {
	Invoke(ctx context.Context, req *InvocationRequest, progress ProgressFunc, history []HistoryEntry) (*types.Result, error)
}

// FollowupProvider is implemented by handlers that suggest next prompts.
type FollowupProvider interface {
	Followups(ctx context.Context, req *InvocationRequest, result *types.Result) []types.Followup
}

// TitleProvider is implemented by handlers that can title a conversation.
type TitleProvider interface {
	ProvideTitle(ctx context.Context, history []HistoryEntry) (string, error)
}

// Activator is implemented by handlers needing best-effort warm-up
// before their first invocation (extension activation equivalent).
type Activator interface {
	Activate(ctx context.Context) error
}

// Command is a sub-command contributed by an agent.
type Command struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Agent describes one pluggable participant.
type Agent struct {
	ID          string
	Name        string
	Description string
	// Locations lists the surfaces the agent can answer for.
	// Empty means all locations.
	Locations []types.Location
	// IsDefault marks the catch-all agent for its locations. The
	// default agent sees the full conversation history.
	IsDefault bool
	Commands  []Command
	Handler   Handler
}

// SupportsLocation reports whether the agent can serve a location.
func (a *Agent) SupportsLocation(loc types.Location) bool {
	if len(a.Locations) == 0 {
		return true
	}
	for _, l := range a.Locations {
		if l == loc {
			return true
		}
	}
	return false
}

// HasCommand reports whether the agent contributes the named command.
func (a *Agent) HasCommand(name string) bool {
	for _, c := range a.Commands {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ContributedCommand is a free-standing slash command with its own
// handler, distinct from agent sub-commands.
type ContributedCommand struct {
	Name        string
	Description string
	Handler     Handler
}

// EchoHandler is the built-in default handler. It streams the prompt
// back as markdown, which keeps the orchestrator runnable and testable
// without any model backend.
type EchoHandler struct {
	// ChunkDelay, when positive, spaces out progress chunks.
	ChunkDelay time.Duration
}

// Invoke implements Handler.
func (h *EchoHandler) Invoke(ctx context.Context, req *InvocationRequest, progress ProgressFunc, history []HistoryEntry) (*types.Result, error) {
	started := time.Now()

	words := strings.Fields(req.Message)
	if len(words) == 0 {
		words = []string{"(empty)"}
	}

	for i, w := range words {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if i > 0 {
			w = " " + w
		}
		progress(&types.MarkdownPart{Kind: "markdown", Content: w})

		if h.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(h.ChunkDelay):
			}
		}
	}

	return &types.Result{
		Timings: &types.ResultTimings{
			TotalElapsedMS: time.Since(started).Milliseconds(),
		},
		Metadata: map[string]any{"echoed": len(words)},
	}, nil
}

// Followups implements FollowupProvider with a single generic suggestion.
func (h *EchoHandler) Followups(ctx context.Context, req *InvocationRequest, result *types.Result) []types.Followup {
	return []types.Followup{{Prompt: "Tell me more", AgentID: req.AgentID}}
}
