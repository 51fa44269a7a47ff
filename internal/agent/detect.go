package agent

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/chatkit-ai/chatkit/pkg/types"
)

// Detection is the outcome of a participant/command detection pass.
type Detection struct {
	Agent   *Agent
	Command string
}

// Detector guesses the intended agent or command from free text when
// none was explicitly specified.
type Detector interface {
	// Detect returns a detection and true when confident. The
	// orchestrator only applies it when the detected agent supports
	// the request location.
	Detect(ctx context.Context, text string, history []HistoryEntry, loc types.Location) (*Detection, bool)
	// HasProviders reports whether detection is available at all.
	HasProviders() bool
}

// LexicalDetector matches the leading token of free text against
// registered agent and command names by edit distance. It is the
// built-in stand-in for model-backed participant detection.
type LexicalDetector struct {
	registry *Registry
	// MaxDistance is the largest edit distance still considered a
	// match. Zero means exact matches only.
	MaxDistance int
}

// NewLexicalDetector creates a detector over the given registry.
func NewLexicalDetector(reg *Registry) *LexicalDetector {
	return &LexicalDetector{registry: reg, MaxDistance: 2}
}

// HasProviders implements Detector.
func (d *LexicalDetector) HasProviders() bool {
	return d.registry.Count() > 0
}

// Detect implements Detector.
func (d *LexicalDetector) Detect(ctx context.Context, text string, history []HistoryEntry, loc types.Location) (*Detection, bool) {
	token := leadingToken(text)
	if token == "" {
		return nil, false
	}

	var (
		best     *Detection
		bestDist = d.MaxDistance + 1
	)

	for _, a := range d.registry.List() {
		if !a.SupportsLocation(loc) {
			continue
		}
		if dist := distance(token, a.ID); dist < bestDist {
			bestDist = dist
			best = &Detection{Agent: a}
		}
		for _, c := range a.Commands {
			if dist := distance(token, c.Name); dist < bestDist {
				bestDist = dist
				best = &Detection{Agent: a, Command: c.Name}
			}
		}
	}

	if best == nil {
		return nil, false
	}
	return best, true
}

// leadingToken extracts the first whitespace-delimited word, lowercased.
func leadingToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimRight(fields[0], ".,!?:;"))
}

func distance(a, b string) int {
	return levenshtein.ComputeDistance(a, strings.ToLower(b))
}
