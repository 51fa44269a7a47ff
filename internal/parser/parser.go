// Package parser turns raw input text into a structured request.
//
// Recognized syntax:
//   - "@name" as the leading token is an agent mention
//   - "/name" as the leading token, or immediately after an agent
//     mention, is a slash-command reference
//   - "#name" anywhere is a variable reference
//
// Everything else becomes plain text spans. Offsets are byte offsets
// into the original text so callers can recompute context ranges
// against the final prompt.
package parser

import (
	"strings"
	"unicode"

	"github.com/chatkit-ai/chatkit/pkg/types"
)

// Parsed is the structured form of a user message.
type Parsed struct {
	SessionID string
	Text      string
	Location  types.Location
	Parts     []types.MessagePart
}

// AgentName returns the explicitly mentioned agent name, if any.
func (p *Parsed) AgentName() string {
	for _, part := range p.Parts {
		if a, ok := part.(*types.AgentRefPart); ok {
			return a.Name
		}
	}
	return ""
}

// CommandName returns the referenced slash command name, if any.
func (p *Parsed) CommandName() string {
	for _, part := range p.Parts {
		if c, ok := part.(*types.CommandRefPart); ok {
			return c.Name
		}
	}
	return ""
}

// Variables returns all referenced variable names in order.
func (p *Parsed) Variables() []string {
	var names []string
	for _, part := range p.Parts {
		if v, ok := part.(*types.VariableRefPart); ok {
			names = append(names, v.Name)
		}
	}
	return names
}

// PlainText returns the message with mention/command/variable markers
// stripped, which is what a handler sees as the prompt.
func (p *Parsed) PlainText() string {
	var b strings.Builder
	for _, part := range p.Parts {
		switch t := part.(type) {
		case *types.TextSpanPart:
			b.WriteString(t.Text)
		case *types.VariableRefPart:
			b.WriteString(t.Name)
		}
	}
	return strings.TrimSpace(b.String())
}

// Parser parses raw request text. It is stateless; the struct exists
// so callers depend on an interface-sized collaborator they can fake.
type Parser struct{}

// New creates a request parser.
func New() *Parser {
	return &Parser{}
}

// Parse tokenizes text into mention, command, variable and text parts.
func (p *Parser) Parse(sessionID, text string, location types.Location) *Parsed {
	parsed := &Parsed{
		SessionID: sessionID,
		Text:      text,
		Location:  location,
	}

	i := 0
	textStart := 0
	sawAgent := false
	sawWord := false // plain text consumed; agent/command refs must precede any

	flushText := func(end int) {
		if end > textStart {
			parsed.Parts = append(parsed.Parts, &types.TextSpanPart{
				Kind: "text",
				Text: text[textStart:end],
				Span: types.OffsetRange{Start: textStart, End: end},
			})
		}
	}

	for i < len(text) {
		c := text[i]

		switch {
		case c == '@' && !sawWord && tokenBoundary(text, i):
			name, end := readToken(text, i+1)
			if name != "" && !sawAgent {
				flushText(i)
				parsed.Parts = append(parsed.Parts, &types.AgentRefPart{
					Kind: "agent",
					Name: name,
					Span: types.OffsetRange{Start: i, End: end},
				})
				sawAgent = true
				i = end
				textStart = end
				continue
			}

		case c == '/' && !sawWord && tokenBoundary(text, i):
			name, end := readToken(text, i+1)
			if name != "" && parsed.CommandName() == "" {
				flushText(i)
				parsed.Parts = append(parsed.Parts, &types.CommandRefPart{
					Kind: "command",
					Name: name,
					Span: types.OffsetRange{Start: i, End: end},
				})
				i = end
				textStart = end
				continue
			}

		case c == '#' && tokenBoundary(text, i):
			name, end := readToken(text, i+1)
			if name != "" {
				flushText(i)
				parsed.Parts = append(parsed.Parts, &types.VariableRefPart{
					Kind: "variable",
					Name: name,
					Span: types.OffsetRange{Start: i, End: end},
				})
				i = end
				textStart = end
				continue
			}
		}

		if !unicode.IsSpace(rune(c)) {
			sawWord = true
		}
		i++
	}
	flushText(len(text))

	return parsed
}

// tokenBoundary reports whether position i starts a token (start of
// text or preceded by whitespace).
func tokenBoundary(text string, i int) bool {
	return i == 0 || unicode.IsSpace(rune(text[i-1]))
}

// readToken reads a [A-Za-z0-9_-]+ token starting at i and returns it
// with the end offset.
func readToken(text string, i int) (string, int) {
	start := i
	for i < len(text) {
		c := text[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' {
			i++
			continue
		}
		break
	}
	return text[start:i], i
}
