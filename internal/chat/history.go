package chat

import (
	"github.com/chatkit-ai/chatkit/internal/agent"
	"github.com/chatkit-ai/chatkit/internal/parser"
)

// buildHistory projects the session's completed requests into the form
// handlers receive. Non-default agents only see the exchanges they
// answered themselves; the default agent (and contributed commands,
// target == nil) see everything.
func (o *Orchestrator) buildHistory(sess *Session, target *agent.Agent) []agent.HistoryEntry {
	scoped := target != nil && !target.IsDefault

	var out []agent.HistoryEntry
	for _, req := range sess.GetRequests() {
		if !req.Response.Complete {
			continue
		}
		if scoped && req.Response.AgentID != target.ID {
			continue
		}
		p := parser.Parsed{Parts: req.Parts}
		out = append(out, agent.HistoryEntry{
			RequestID: req.ID,
			Prompt:    p.PlainText(),
			AgentID:   req.Response.AgentID,
			Command:   req.Response.Command,
			Response:  req.Response.Parts,
			Result:    req.Response.Result,
		})
	}
	return out
}
