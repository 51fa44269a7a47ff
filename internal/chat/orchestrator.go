package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/chatkit-ai/chatkit/internal/agent"
	"github.com/chatkit-ai/chatkit/internal/logging"
	"github.com/chatkit-ai/chatkit/internal/parser"
	"github.com/chatkit-ai/chatkit/internal/storage"
	"github.com/chatkit-ai/chatkit/internal/store"
	"github.com/chatkit-ai/chatkit/pkg/types"
)

var (
	// ErrUnknownSession is raised for operations against a session id
	// that is neither live nor restorable.
	ErrUnknownSession = errors.New("unknown session")
	// ErrCannotHandle is returned when no agent or contributed command
	// can serve a request.
	ErrCannotHandle = errors.New("cannot handle request")
)

// noResponseMessage is attached when a handler returns no result at all.
const noResponseMessage = "The agent did not return a response. Please try again."

// Options carries the orchestrator's collaborators. Explicit fields
// instead of a service container keep it testable without a framework.
type Options struct {
	Storage *storage.Storage
	// FileStore enables per-session-file persistence. When nil the
	// orchestrator uses single-blob persistence on Storage.
	FileStore *store.SessionStore
	Registry  *agent.Registry
	Parser    *parser.Parser
	Detector  agent.Detector
	Config    *types.Config
	// Scope partitions persisted state, e.g. a workspace identifier.
	Scope string
}

// Orchestrator is the single façade clients use. It owns the in-memory
// session registry, the pending-request table, persistence policy,
// multi-window reconciliation and the per-request dispatch pipeline.
type Orchestrator struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	// persisted is the blob-mode snapshot loaded at open; SaveState
	// reconciles against a fresh read, never against this snapshot.
	persisted map[string]*types.SerializedSession
	// deletedIDs suppresses resurrection of cleared sessions during
	// reconciliation.
	deletedIDs map[string]struct{}
	// createdIDs tracks sessions created in this window, for the
	// first-time-persistence rule of the merge.
	createdIDs map[string]struct{}

	pending *PendingTable

	storage   *storage.Storage
	fileStore *store.SessionStore
	registry  *agent.Registry
	parser    *parser.Parser
	detector  agent.Detector
	cfg       *types.Config
	scope     string

	log zerolog.Logger
}

// NewOrchestrator creates an orchestrator and loads the persisted
// snapshot for its scope.
func NewOrchestrator(ctx context.Context, opts Options) (*Orchestrator, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = &types.Config{}
	}
	cfg.ApplyDefaults()

	o := &Orchestrator{
		sessions:   make(map[string]*Session),
		persisted:  make(map[string]*types.SerializedSession),
		deletedIDs: make(map[string]struct{}),
		createdIDs: make(map[string]struct{}),
		pending:    NewPendingTable(),
		storage:    opts.Storage,
		fileStore:  opts.FileStore,
		registry:   opts.Registry,
		parser:     opts.Parser,
		detector:   opts.Detector,
		cfg:        cfg,
		scope:      opts.Scope,
		log:        logging.With().Str("component", "orchestrator").Logger(),
	}
	if o.parser == nil {
		o.parser = parser.New()
	}

	if o.fileStore != nil {
		// Migration from the single-blob layout happens lazily on
		// first use of file storage.
		if err := o.fileStore.MigrateDataIfNeeded(ctx, o.readBlobSessions); err != nil {
			return nil, fmt.Errorf("storage migration failed: %w", err)
		}
	} else if o.storage != nil {
		persisted, err := o.readBlobMap(ctx)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		if persisted != nil {
			o.persisted = persisted
		}
	}

	return o, nil
}

// StartSession creates and registers a fresh session, then kicks off
// best-effort default-agent activation without blocking the return.
func (o *Orchestrator) StartSession(ctx context.Context, location types.Location) *Session {
	sess := NewSession(generateID(), location)

	o.mu.Lock()
	o.sessions[sess.ID()] = sess
	o.createdIDs[sess.ID()] = struct{}{}
	o.mu.Unlock()

	go o.activateDefaultAgent(ctx, location)

	return sess
}

// activateDefaultAgent warms up the default agent for a location with
// retries. Failures are logged and otherwise ignored.
func (o *Orchestrator) activateDefaultAgent(ctx context.Context, location types.Location) {
	def, err := o.registry.Default(location)
	if err != nil {
		return
	}
	act, ok := def.Handler.(agent.Activator)
	if !ok {
		return
	}

	b := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(200*time.Millisecond),
		backoff.WithMaxElapsedTime(30*time.Second),
	), ctx)

	err = backoff.Retry(func() error { return act.Activate(ctx) }, b)
	if err != nil {
		o.log.Warn().Err(err).Str("agent", def.ID).Msg("default agent activation failed")
	}
}

// GetSession returns the live session for an id.
func (o *Orchestrator) GetSession(id string) (*Session, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.sessions[id]
	return s, ok
}

// GetOrRestoreSession returns the live session if present, otherwise
// rehydrates it from storage. Returns (nil, nil) when nothing is found.
func (o *Orchestrator) GetOrRestoreSession(ctx context.Context, id string) (*Session, error) {
	o.mu.RLock()
	if s, ok := o.sessions[id]; ok {
		o.mu.RUnlock()
		return s, nil
	}
	o.mu.RUnlock()

	var data *types.SerializedSession
	if o.fileStore != nil {
		read, err := o.fileStore.ReadSession(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		data = read
	} else {
		o.mu.RLock()
		data = o.persisted[id]
		o.mu.RUnlock()
	}
	if data == nil {
		return nil, nil
	}

	sess, err := NewSessionFromSerialized(data)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", id, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	// Another caller may have restored it while we were reading.
	if existing, ok := o.sessions[id]; ok {
		return existing, nil
	}
	o.sessions[id] = sess
	return sess, nil
}

// SendOptions carries optional per-send parameters.
type SendOptions struct {
	// AgentID and Command override the parsed mentions, for
	// programmatic sends.
	AgentID string
	Command string

	Variables    types.VariableData
	Confirm      *types.ConfirmData
	LocationData *types.LocationData
	ModelID      string
	Attempt      int
	EnabledTools map[string]bool
	// DetectionDisabled suppresses the detection pass for this send.
	DetectionDisabled bool
}

// SendOutcome is the handle returned by SendRequest. ResponseCreated
// is signalled exactly once when the first progress chunk (or the
// terminal result) is observed; ResponseComplete when the request
// reaches a terminal state.
type SendOutcome struct {
	Request *Request
	Agent   *agent.Agent
	Command string

	created chan struct{}
	done    chan struct{}
}

// ResponseCreated is closed on the first observed progress chunk.
func (s *SendOutcome) ResponseCreated() <-chan struct{} { return s.created }

// ResponseComplete is closed when the request reaches a terminal state.
func (s *SendOutcome) ResponseComplete() <-chan struct{} { return s.done }

// resolution is the outcome of agent/command resolution for one send.
type resolution struct {
	agent       *agent.Agent
	command     string
	contributed *agent.ContributedCommand
	detected    bool
}

func (r *resolution) handler() agent.Handler {
	if r.contributed != nil {
		return r.contributed.Handler
	}
	return r.agent.Handler
}

func (r *resolution) agentID() string {
	if r.agent != nil {
		return r.agent.ID
	}
	return ""
}

// SendRequest parses, resolves and dispatches one user message.
//
// It returns (nil, nil) for empty input without an explicit agent or
// command, and silently no-ops when the session is busy. An unknown
// session id is a usage error.
func (o *Orchestrator) SendRequest(ctx context.Context, sessionID, text string, opts SendOptions) (*SendOutcome, error) {
	sess, ok := o.GetSession(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	parsed := o.parser.Parse(sessionID, text, sess.Location())

	agentName := opts.AgentID
	if agentName == "" {
		agentName = parsed.AgentName()
	}
	cmdName := opts.Command
	if cmdName == "" {
		cmdName = parsed.CommandName()
	}

	if parsed.PlainText() == "" && agentName == "" && cmdName == "" {
		o.log.Trace().Str("session", sessionID).Msg("ignoring empty request")
		return nil, nil
	}

	dispatchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	entry, begun := o.pending.Begin(sessionID, cancel)
	if !begun {
		cancel()
		o.log.Trace().Str("session", sessionID).Msg("session busy, request rejected")
		return nil, nil
	}

	res, err := o.resolve(dispatchCtx, sess, parsed.PlainText(), agentName, cmdName, opts)
	if err != nil {
		o.pending.Complete(entry)
		cancel()
		return nil, err
	}

	// Requests pending confirmation are superseded by the new send.
	for _, r := range sess.GetRequests() {
		if r.RemoveOnSend {
			_ = sess.RemoveRequest(r.ID, RemovalReasonResend)
		}
	}

	req := sess.AddRequest(AddRequestOptions{
		Text:         text,
		Parts:        parsed.Parts,
		Variables:    opts.Variables,
		Attempt:      opts.Attempt,
		AgentID:      res.agentID(),
		Command:      res.command,
		Confirm:      opts.Confirm,
		LocationData: opts.LocationData,
		ModelID:      opts.ModelID,
	})
	o.pending.SetRequestID(entry, req.ID)

	outcome := &SendOutcome{
		Request: req,
		Agent:   res.agent,
		Command: res.command,
		created: make(chan struct{}),
		done:    make(chan struct{}),
	}

	go o.dispatch(dispatchCtx, cancel, entry, sess, req, res, opts, outcome)

	return outcome, nil
}

// resolve determines which agent or contributed command answers a
// request, running the detection pass when nothing explicit is given.
func (o *Orchestrator) resolve(ctx context.Context, sess *Session, plainText, agentName, cmdName string, opts SendOptions) (*resolution, error) {
	loc := sess.Location()

	if agentName != "" {
		a, err := o.registry.Get(agentName)
		if err == nil && a.SupportsLocation(loc) {
			// Agent-style dispatch takes priority over free-standing
			// contributed commands when the agent is resolvable here.
			return &resolution{agent: a, command: cmdName}, nil
		}
		if cmdName != "" {
			if c, ok := o.registry.GetCommand(cmdName); ok {
				return &resolution{contributed: c, command: cmdName}, nil
			}
		}
		return nil, fmt.Errorf("%w: agent %q not available at %s", ErrCannotHandle, agentName, loc)
	}

	if cmdName != "" {
		if def, err := o.registry.Default(loc); err == nil && def.HasCommand(cmdName) {
			return &resolution{agent: def, command: cmdName}, nil
		}
		if c, ok := o.registry.GetCommand(cmdName); ok {
			return &resolution{contributed: c, command: cmdName}, nil
		}
		return nil, fmt.Errorf("%w: command %q", ErrCannotHandle, cmdName)
	}

	if !opts.DetectionDisabled && o.cfg.DetectionEnabled && o.detector != nil && o.detector.HasProviders() {
		history := o.buildHistory(sess, nil)
		if det, ok := o.detector.Detect(ctx, plainText, history, loc); ok && det.Agent.SupportsLocation(loc) {
			return &resolution{agent: det.Agent, command: det.Command, detected: true}, nil
		}
	}

	def, err := o.registry.Default(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: no default agent for %s", ErrCannotHandle, loc)
	}
	return &resolution{agent: def}, nil
}

// dispatch invokes the resolved handler and drives the request to a
// terminal state. Nothing thrown by a handler escapes this boundary.
func (o *Orchestrator) dispatch(ctx context.Context, cancel context.CancelFunc, entry *PendingRequest, sess *Session, req *Request, res *resolution, opts SendOptions, outcome *SendOutcome) {
	defer cancel()
	started := time.Now()

	var createdOnce sync.Once
	signalCreated := func() {
		createdOnce.Do(func() { close(outcome.created) })
	}

	var progressMu sync.Mutex
	progressed := false
	var firstProgressAt time.Time

	progress := func(part types.ResponsePart) {
		// Chunks delivered after cancellation are dropped here.
		if ctx.Err() != nil {
			return
		}
		progressMu.Lock()
		if !progressed {
			progressed = true
			firstProgressAt = time.Now()
		}
		progressMu.Unlock()
		sess.AcceptResponseProgress(req, part)
		signalCreated()
	}

	if res.detected {
		sess.ResolveAgent(req, res.agentID(), res.command)
	}

	history := o.buildHistory(sess, res.agent)
	inv := &agent.InvocationRequest{
		SessionID:    sess.ID(),
		RequestID:    req.ID,
		AgentID:      res.agentID(),
		Command:      res.command,
		Message:      plainPrompt(req),
		Parts:        req.Parts,
		Variables:    req.Variables,
		Location:     sess.Location(),
		LocationData: req.LocationData,
		Confirm:      req.ConfirmData,
		Attempt:      req.Attempt,
		EnabledTools: opts.EnabledTools,
	}

	result, err := invokeHandler(ctx, res.handler(), inv, progress, history)

	progressMu.Lock()
	hadProgress := progressed
	firstAt := firstProgressAt
	progressMu.Unlock()

	switch {
	case ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)):
		// Cancellation is not an error: exit without setting a result.
		o.log.Debug().Str("session", sess.ID()).Str("request", req.ID).
			Dur("elapsed", time.Since(started)).Msg("request cancelled")
		sess.CancelRequest(req)
		signalCreated()
		sess.CompleteResponse(req)

	case err != nil:
		kind := types.ErrorKindError
		if hadProgress {
			kind = types.ErrorKindErrorWithOutput
		}
		o.log.Error().Err(err).Str("session", sess.ID()).Str("request", req.ID).
			Str("agent", res.agentID()).Msg("handler failed")
		sess.SetResponse(req, &types.Result{
			Error: &types.ResultError{
				Message:              err.Error(),
				Kind:                 kind,
				ResponseIsIncomplete: hadProgress,
			},
		})
		signalCreated()
		sess.CompleteResponse(req)

	case result == nil:
		// A handler returning nothing is an error, not a success.
		sess.SetResponse(req, &types.Result{
			Error: &types.ResultError{Message: noResponseMessage, Kind: types.ErrorKindError},
		})
		signalCreated()
		sess.CompleteResponse(req)

	default:
		if result.Timings == nil {
			result.Timings = &types.ResultTimings{}
		}
		if !firstAt.IsZero() {
			result.Timings.FirstProgressMS = firstAt.Sub(started).Milliseconds()
		}
		result.Timings.TotalElapsedMS = time.Since(started).Milliseconds()

		sess.SetResponse(req, result)
		signalCreated()

		if fp, ok := res.handler().(agent.FollowupProvider); ok && ctx.Err() == nil {
			if followups := fp.Followups(ctx, inv, result); len(followups) > 0 {
				sess.SetFollowups(req, followups)
			}
		}
		sess.CompleteResponse(req)
	}

	// Complete via the entry handle: the table may already map this
	// session to a newer operation after a cancel-then-send, or the
	// entry may have been reparented to another session by adoption.
	o.pending.Complete(entry)
	close(outcome.done)
}

// invokeHandler calls the handler with a panic boundary so dispatch
// always reaches a terminal state.
func invokeHandler(ctx context.Context, h agent.Handler, inv *agent.InvocationRequest, progress agent.ProgressFunc, history []agent.HistoryEntry) (result *types.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Invoke(ctx, inv, progress, history)
}

// plainPrompt rebuilds the prompt text a handler sees from the parsed parts.
func plainPrompt(req *Request) string {
	p := parser.Parsed{Parts: req.Parts}
	return p.PlainText()
}

// ResendRequest cancels any in-flight operation for the request's
// session, removes the original request and re-dispatches it with the
// carried-over location and attachment data.
func (o *Orchestrator) ResendRequest(ctx context.Context, req *Request, opts SendOptions) (*SendOutcome, error) {
	sess, ok := o.GetSession(req.SessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, req.SessionID)
	}

	o.pending.Cancel(sess.ID())

	if err := sess.RemoveRequest(req.ID, RemovalReasonResend); err != nil {
		return nil, err
	}

	if opts.LocationData == nil {
		opts.LocationData = req.LocationData
	}
	if len(opts.Variables.Variables) == 0 {
		opts.Variables = req.Variables
	}
	if opts.AgentID == "" {
		opts.AgentID = req.Response.AgentID
	}
	if opts.Command == "" {
		opts.Command = req.Response.Command
	}
	if opts.ModelID == "" {
		opts.ModelID = req.ModelID
	}
	opts.Attempt = req.Attempt + 1

	return o.SendRequest(ctx, sess.ID(), req.Text, opts)
}

// RemoveRequest deletes a request, cancelling its in-flight work first
// when it is the pending one.
func (o *Orchestrator) RemoveRequest(sessionID, requestID string, reason RemovalReason) error {
	sess, ok := o.GetSession(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	if p, pending := o.pending.Get(sessionID); pending && p.RequestID == requestID {
		o.pending.Cancel(sessionID)
	}
	return sess.RemoveRequest(requestID, reason)
}

// CancelCurrentRequestForSession fires cancellation for the session's
// in-flight operation, if any.
func (o *Orchestrator) CancelCurrentRequestForSession(sessionID string) bool {
	return o.pending.Cancel(sessionID)
}

// AdoptRequest transplants a request from its current session into the
// target session, re-parenting any still-open pending handle.
func (o *Orchestrator) AdoptRequest(req *Request, targetSessionID string) error {
	source, ok := o.GetSession(req.SessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, req.SessionID)
	}
	target, ok := o.GetSession(targetSessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, targetSessionID)
	}
	if _, found := source.GetRequest(req.ID); !found {
		return fmt.Errorf("request %s does not belong to session %s", req.ID, req.SessionID)
	}
	if source.Location() != target.Location() {
		return fmt.Errorf("cannot adopt request across locations: %s -> %s",
			source.Location(), target.Location())
	}

	sourceID := source.ID()
	if err := source.RemoveRequest(req.ID, RemovalReasonAdoption); err != nil {
		return err
	}
	target.adoptRequest(req)

	if p, pending := o.pending.Get(sourceID); pending && p.RequestID == req.ID {
		o.pending.Reparent(sourceID, targetSessionID)
	}
	return nil
}

// AddCompleteRequest injects an already-finished exchange, e.g. from
// an imported transcript.
func (o *Orchestrator) AddCompleteRequest(sessionID, text string, variables types.VariableData, responseParts []types.ResponsePart, result *types.Result, agentID, command string) (*Request, error) {
	sess, ok := o.GetSession(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	parsed := o.parser.Parse(sessionID, text, sess.Location())
	req := sess.AddRequest(AddRequestOptions{
		Text:      text,
		Parts:     parsed.Parts,
		Variables: variables,
		AgentID:   agentID,
		Command:   command,
	})
	for _, p := range responseParts {
		sess.AcceptResponseProgress(req, p)
	}
	if result != nil {
		sess.SetResponse(req, result)
	}
	sess.CompleteResponse(req)
	return req, nil
}

// HasPending reports whether a session has an in-flight request.
func (o *Orchestrator) HasPending(sessionID string) bool {
	return o.pending.Has(sessionID)
}
