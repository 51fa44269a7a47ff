package types

import (
	"encoding/json"
	"fmt"
)

// MessagePart is one component of a parsed user message.
type MessagePart interface {
	PartKind() string
	PartSpan() OffsetRange
}

// TextSpanPart is a plain text span of the message.
type TextSpanPart struct {
	Kind string      `json:"kind"` // always "text"
	Text string      `json:"text"`
	Span OffsetRange `json:"span"`
}

func (p *TextSpanPart) PartKind() string      { return "text" }
func (p *TextSpanPart) PartSpan() OffsetRange { return p.Span }

// AgentRefPart is an explicit @agent mention.
type AgentRefPart struct {
	Kind string      `json:"kind"` // always "agent"
	Name string      `json:"name"`
	Span OffsetRange `json:"span"`
}

func (p *AgentRefPart) PartKind() string      { return "agent" }
func (p *AgentRefPart) PartSpan() OffsetRange { return p.Span }

// CommandRefPart is a /command reference, either free-standing or
// scoped to a preceding agent mention.
type CommandRefPart struct {
	Kind string      `json:"kind"` // always "command"
	Name string      `json:"name"`
	Span OffsetRange `json:"span"`
}

func (p *CommandRefPart) PartKind() string      { return "command" }
func (p *CommandRefPart) PartSpan() OffsetRange { return p.Span }

// VariableRefPart is a #variable reference to attached context.
type VariableRefPart struct {
	Kind  string      `json:"kind"` // always "variable"
	Name  string      `json:"name"`
	Span  OffsetRange `json:"span"`
	URI   *URI        `json:"uri,omitempty"`
	Range *Range      `json:"range,omitempty"`
}

func (p *VariableRefPart) PartKind() string      { return "variable" }
func (p *VariableRefPart) PartSpan() OffsetRange { return p.Span }

// UnmarshalMessagePart decodes a JSON-encoded message part by its kind tag.
func UnmarshalMessagePart(data []byte) (MessagePart, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Kind {
	case "text":
		var p TextSpanPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "agent":
		var p AgentRefPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "command":
		var p CommandRefPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "variable":
		var p VariableRefPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown message part kind: %q", probe.Kind)
	}
}

// ResponsePart is one unit of incremental handler output.
type ResponsePart interface {
	ResponseKind() string
}

// MarkdownPart is a chunk of markdown content.
type MarkdownPart struct {
	Kind    string `json:"kind"` // always "markdown"
	Content string `json:"content"`
}

func (p *MarkdownPart) ResponseKind() string { return "markdown" }

// ReferencePart cites a resource, optionally narrowed to a range.
type ReferencePart struct {
	Kind  string `json:"kind"` // always "reference"
	URI   URI    `json:"uri"`
	Range *Range `json:"range,omitempty"`
}

func (p *ReferencePart) ResponseKind() string { return "reference" }

// ProgressNotePart is a transient status note emitted while working.
type ProgressNotePart struct {
	Kind    string `json:"kind"` // always "progress"
	Message string `json:"message"`
}

func (p *ProgressNotePart) ResponseKind() string { return "progress" }

// UnmarshalResponsePart decodes a JSON-encoded response part by its kind tag.
func UnmarshalResponsePart(data []byte) (ResponsePart, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Kind {
	case "markdown":
		var p MarkdownPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "reference":
		var p ReferencePart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "progress":
		var p ProgressNotePart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown response part kind: %q", probe.Kind)
	}
}
