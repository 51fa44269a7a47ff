package types

// ErrorKind distinguishes how a failed response should be presented.
type ErrorKind string

const (
	// ErrorKindError means the handler failed before producing any output.
	ErrorKindError ErrorKind = "error"
	// ErrorKindErrorWithOutput means the handler failed after emitting
	// at least one progress chunk; the partial output is still shown.
	ErrorKindErrorWithOutput ErrorKind = "errorWithOutput"
	// ErrorKindFiltered means the response was withheld by a content filter.
	ErrorKindFiltered ErrorKind = "filtered"
)

// ResultError is the structured error attached to a failed result.
type ResultError struct {
	Message              string    `json:"message"`
	Kind                 ErrorKind `json:"kind"`
	ResponseIsIncomplete bool      `json:"responseIsIncomplete,omitempty"`
	ResponseIsFiltered   bool      `json:"responseIsFiltered,omitempty"`
}

// ResultTimings records wall-clock milestones for a dispatch.
type ResultTimings struct {
	FirstProgressMS int64 `json:"firstProgress,omitempty"`
	TotalElapsedMS  int64 `json:"totalElapsed,omitempty"`
}

// Result is the terminal envelope of a response. A nil Error means success.
type Result struct {
	Error     *ResultError   `json:"errorDetails,omitempty"`
	Timings   *ResultTimings `json:"timings,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Citations []URI          `json:"citations,omitempty"`
}

// Followup is a suggested next prompt attached to a completed response.
type Followup struct {
	Prompt  string `json:"prompt"`
	Title   string `json:"title,omitempty"`
	AgentID string `json:"agentID,omitempty"`
	Command string `json:"command,omitempty"`
}
