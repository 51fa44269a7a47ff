// Package agent provides the participant model for chatkit.
//
// An [Agent] is a pluggable handler capable of answering a request for
// a given location. Agents contribute sub-commands, and free-standing
// slash commands can be contributed independently of any agent as
// [ContributedCommand] values. The [Registry] resolves a logical
// participant name to its descriptor with thread-safe operations:
//
//	registry := agent.NewRegistry()
//	registry.Register(&agent.Agent{ID: "workspace", IsDefault: true, Handler: h})
//	a, err := registry.Get("workspace")
//	def, err := registry.Default(types.LocationPanel)
//
// # Handlers
//
// The orchestrator is agnostic to how an agent produces an answer; the
// [Handler] interface is the uniform invocation contract. A handler
// receives a fully-prepared [InvocationRequest], a progress callback
// for incremental output, and a history view scoped to what that agent
// is allowed to see. Optional capabilities are discovered by interface
// assertion: [FollowupProvider], [TitleProvider], [Activator].
//
// # Detection
//
// When a request names no agent or command, and detection is enabled,
// a [Detector] may infer one from the free text and history. The
// built-in [LexicalDetector] matches the leading token against
// registered names by edit distance; model-backed detectors plug in
// behind the same interface.
//
// # Manifests
//
// Declarative agents load from YAML manifests via [LoadManifest]:
//
//	agents:
//	  - id: workspace
//	    description: Answers questions about the workspace
//	    default: true
//	    locations: [panel]
//	    commands:
//	      - name: explain
package agent
