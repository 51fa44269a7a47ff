package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatkit-ai/chatkit/internal/agent"
	"github.com/chatkit-ai/chatkit/internal/storage"
	"github.com/chatkit-ai/chatkit/pkg/types"
)

// captureHandler records invocations and emits one markdown chunk.
type captureHandler struct {
	mu          sync.Mutex
	invocations []*agent.InvocationRequest
	histories   [][]agent.HistoryEntry
}

func (h *captureHandler) Invoke(ctx context.Context, req *agent.InvocationRequest, progress agent.ProgressFunc, history []agent.HistoryEntry) (*types.Result, error) {
	h.mu.Lock()
	h.invocations = append(h.invocations, req)
	h.histories = append(h.histories, history)
	h.mu.Unlock()
	progress(&types.MarkdownPart{Kind: "markdown", Content: "ok"})
	return &types.Result{}, nil
}

func (h *captureHandler) lastHistory() []agent.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.histories) == 0 {
		return nil
	}
	return h.histories[len(h.histories)-1]
}

// blockingHandler parks until released or cancelled.
type blockingHandler struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (h *blockingHandler) Invoke(ctx context.Context, req *agent.InvocationRequest, progress agent.ProgressFunc, history []agent.HistoryEntry) (*types.Result, error) {
	h.started <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.release:
		return &types.Result{}, nil
	}
}

type failingHandler struct {
	withOutput bool
}

func (h *failingHandler) Invoke(ctx context.Context, req *agent.InvocationRequest, progress agent.ProgressFunc, history []agent.HistoryEntry) (*types.Result, error) {
	if h.withOutput {
		progress(&types.MarkdownPart{Kind: "markdown", Content: "partial"})
	}
	return nil, errors.New("backend unavailable")
}

type nilResultHandler struct{}

func (h *nilResultHandler) Invoke(ctx context.Context, req *agent.InvocationRequest, progress agent.ProgressFunc, history []agent.HistoryEntry) (*types.Result, error) {
	return nil, nil
}

func newTestOrchestrator(t *testing.T, defaultHandler agent.Handler, mutate ...func(*Options)) *Orchestrator {
	t.Helper()
	if defaultHandler == nil {
		defaultHandler = &agent.EchoHandler{}
	}
	reg := agent.NewRegistry()
	reg.Register(&agent.Agent{
		ID:        "assistant",
		Name:      "Assistant",
		IsDefault: true,
		Handler:   defaultHandler,
	})

	opts := Options{
		Registry: reg,
		Config:   &types.Config{},
		Scope:    "test",
	}
	for _, m := range mutate {
		m(&opts)
	}

	o, err := NewOrchestrator(context.Background(), opts)
	require.NoError(t, err)
	return o
}

func waitDone(t *testing.T, out *SendOutcome) {
	t.Helper()
	select {
	case <-out.ResponseComplete():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for response completion")
	}
}

func TestSendRequestEcho(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	sess := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), sess.ID(), "hello world", SendOptions{})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "assistant", out.Agent.ID)

	waitDone(t, out)

	req := out.Request
	assert.True(t, req.Response.Complete)
	assert.False(t, req.Response.Canceled)
	require.NotNil(t, req.Response.Result)
	assert.Nil(t, req.Response.Result.Error)
	require.Len(t, req.Response.Parts, 2)
	assert.NotEmpty(t, req.Response.Followups)
	assert.False(t, o.HasPending(sess.ID()))
}

func TestSendRequestEmptyInputIgnored(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	sess := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), sess.ID(), "   ", SendOptions{})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Empty(t, sess.GetRequests())
}

func TestSendRequestUnknownSession(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	_, err := o.SendRequest(context.Background(), "nope", "hi", SendOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestSendRequestBusySessionIsNoOp(t *testing.T) {
	h := newBlockingHandler()
	o := newTestOrchestrator(t, h)
	sess := o.StartSession(context.Background(), types.LocationPanel)

	first, err := o.SendRequest(context.Background(), sess.ID(), "one", SendOptions{})
	require.NoError(t, err)
	require.NotNil(t, first)
	<-h.started

	// The second send while busy is silently dropped.
	second, err := o.SendRequest(context.Background(), sess.ID(), "two", SendOptions{})
	require.NoError(t, err)
	assert.Nil(t, second)
	require.Len(t, sess.GetRequests(), 1)

	close(h.release)
	waitDone(t, first)
}

func TestCancelCurrentRequest(t *testing.T) {
	h := newBlockingHandler()
	o := newTestOrchestrator(t, h)
	sess := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), sess.ID(), "long running", SendOptions{})
	require.NoError(t, err)
	<-h.started

	require.True(t, o.CancelCurrentRequestForSession(sess.ID()))
	waitDone(t, out)

	req := out.Request
	assert.True(t, req.Response.Canceled)
	assert.True(t, req.Response.Complete)
	// Cancellation sets no result.
	assert.Nil(t, req.Response.Result)
	assert.False(t, o.HasPending(sess.ID()))
}

func TestHandlerErrorBecomesResult(t *testing.T) {
	o := newTestOrchestrator(t, &failingHandler{})
	sess := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), sess.ID(), "boom", SendOptions{})
	require.NoError(t, err)
	waitDone(t, out)

	result := out.Request.Response.Result
	require.NotNil(t, result)
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrorKindError, result.Error.Kind)
	assert.Contains(t, result.Error.Message, "backend unavailable")
	assert.False(t, result.Error.ResponseIsIncomplete)
}

func TestHandlerErrorAfterProgress(t *testing.T) {
	o := newTestOrchestrator(t, &failingHandler{withOutput: true})
	sess := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), sess.ID(), "boom", SendOptions{})
	require.NoError(t, err)
	waitDone(t, out)

	result := out.Request.Response.Result
	require.NotNil(t, result)
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrorKindErrorWithOutput, result.Error.Kind)
	assert.True(t, result.Error.ResponseIsIncomplete)
	require.Len(t, out.Request.Response.Parts, 1)
}

func TestNilHandlerResultIsAnError(t *testing.T) {
	o := newTestOrchestrator(t, &nilResultHandler{})
	sess := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), sess.ID(), "anything", SendOptions{})
	require.NoError(t, err)
	waitDone(t, out)

	result := out.Request.Response.Result
	require.NotNil(t, result)
	require.NotNil(t, result.Error)
	assert.Equal(t, noResponseMessage, result.Error.Message)
}

func TestResendRequest(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	sess := o.StartSession(context.Background(), types.LocationPanel)

	first, err := o.SendRequest(context.Background(), sess.ID(), "try again", SendOptions{})
	require.NoError(t, err)
	waitDone(t, first)

	second, err := o.ResendRequest(context.Background(), first.Request, SendOptions{})
	require.NoError(t, err)
	require.NotNil(t, second)
	waitDone(t, second)

	reqs := sess.GetRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "try again", reqs[0].Text)
	assert.Equal(t, 1, reqs[0].Attempt)
	assert.NotEqual(t, first.Request.ID, reqs[0].ID)
}

func TestResendWhileInFlightKeepsRetryPending(t *testing.T) {
	h := newBlockingHandler()
	o := newTestOrchestrator(t, h)
	sess := o.StartSession(context.Background(), types.LocationPanel)

	first, err := o.SendRequest(context.Background(), sess.ID(), "try again", SendOptions{})
	require.NoError(t, err)
	require.NotNil(t, first)
	<-h.started

	// Resend cancels the in-flight dispatch and starts a new one.
	second, err := o.ResendRequest(context.Background(), first.Request, SendOptions{})
	require.NoError(t, err)
	require.NotNil(t, second)
	<-h.started

	// The cancelled dispatch winding down must not release the retry's
	// lock on the session.
	waitDone(t, first)
	assert.True(t, o.HasPending(sess.ID()))

	third, err := o.SendRequest(context.Background(), sess.ID(), "while busy", SendOptions{})
	require.NoError(t, err)
	assert.Nil(t, third)

	// The retry is still cancellable and completes normally.
	close(h.release)
	waitDone(t, second)

	reqs := sess.GetRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 1, reqs[0].Attempt)
	assert.True(t, reqs[0].Response.Complete)
	assert.False(t, o.HasPending(sess.ID()))
}

func TestCancelThenImmediateSend(t *testing.T) {
	h := newBlockingHandler()
	o := newTestOrchestrator(t, h)
	sess := o.StartSession(context.Background(), types.LocationPanel)

	first, err := o.SendRequest(context.Background(), sess.ID(), "one", SendOptions{})
	require.NoError(t, err)
	<-h.started

	// Cancel frees the slot immediately; the next send begins before
	// the cancelled dispatch has exited.
	require.True(t, o.CancelCurrentRequestForSession(sess.ID()))
	second, err := o.SendRequest(context.Background(), sess.ID(), "two", SendOptions{})
	require.NoError(t, err)
	require.NotNil(t, second)
	<-h.started

	waitDone(t, first)
	assert.True(t, o.HasPending(sess.ID()))
	assert.True(t, first.Request.Response.Canceled)

	close(h.release)
	waitDone(t, second)
	assert.False(t, second.Request.Response.Canceled)
	require.NotNil(t, second.Request.Response.Result)
	assert.False(t, o.HasPending(sess.ID()))
}

func TestExplicitAgentAndHistoryScoping(t *testing.T) {
	defaultHandler := &captureHandler{}
	helperHandler := &captureHandler{}

	o := newTestOrchestrator(t, defaultHandler, func(opts *Options) {
		opts.Registry.Register(&agent.Agent{
			ID:      "helper",
			Name:    "Helper",
			Handler: helperHandler,
		})
	})
	sess := o.StartSession(context.Background(), types.LocationPanel)

	send := func(text string) {
		out, err := o.SendRequest(context.Background(), sess.ID(), text, SendOptions{})
		require.NoError(t, err)
		require.NotNil(t, out)
		waitDone(t, out)
	}

	send("first for the default")
	send("@helper do a thing")
	// The non-default agent only sees its own prior turns.
	assert.Empty(t, helperHandler.lastHistory())

	send("@helper one more")
	require.Len(t, helperHandler.lastHistory(), 1)
	assert.Equal(t, "helper", helperHandler.lastHistory()[0].AgentID)

	send("and back to the default")
	// The default agent sees the full conversation.
	assert.Len(t, defaultHandler.lastHistory(), 3)
}

func TestContributedCommandDispatch(t *testing.T) {
	cmdHandler := &captureHandler{}
	o := newTestOrchestrator(t, nil, func(opts *Options) {
		opts.Registry.RegisterCommand(&agent.ContributedCommand{
			Name:    "review",
			Handler: cmdHandler,
		})
	})
	sess := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), sess.ID(), "/review this code", SendOptions{})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Nil(t, out.Agent)
	assert.Equal(t, "review", out.Command)
	waitDone(t, out)

	cmdHandler.mu.Lock()
	defer cmdHandler.mu.Unlock()
	require.Len(t, cmdHandler.invocations, 1)
	assert.Equal(t, "review", cmdHandler.invocations[0].Command)
	assert.Equal(t, "this code", cmdHandler.invocations[0].Message)
}

func TestDetectionRoutesToAgent(t *testing.T) {
	helperHandler := &captureHandler{}
	o := newTestOrchestrator(t, nil, func(opts *Options) {
		opts.Registry.Register(&agent.Agent{
			ID:      "helper",
			Name:    "Helper",
			Handler: helperHandler,
		})
		opts.Detector = agent.NewLexicalDetector(opts.Registry)
		opts.Config.DetectionEnabled = true
	})
	sess := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), sess.ID(), "helper please sort this out", SendOptions{})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "helper", out.Agent.ID)
	waitDone(t, out)

	assert.Equal(t, "helper", out.Request.Response.AgentID)
}

func TestAdoptRequest(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	a := o.StartSession(context.Background(), types.LocationPanel)
	b := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), a.ID(), "move me", SendOptions{})
	require.NoError(t, err)
	waitDone(t, out)

	require.NoError(t, o.AdoptRequest(out.Request, b.ID()))
	assert.Empty(t, a.GetRequests())
	require.Len(t, b.GetRequests(), 1)
	assert.Equal(t, b.ID(), out.Request.SessionID)
}

func TestAdoptRequestInFlight(t *testing.T) {
	h := newBlockingHandler()
	o := newTestOrchestrator(t, h)
	a := o.StartSession(context.Background(), types.LocationPanel)
	b := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), a.ID(), "move me mid-flight", SendOptions{})
	require.NoError(t, err)
	<-h.started

	require.NoError(t, o.AdoptRequest(out.Request, b.ID()))
	assert.False(t, o.HasPending(a.ID()))
	assert.True(t, o.HasPending(b.ID()))

	// Completion after adoption must free the adopting session, not the
	// original one.
	close(h.release)
	waitDone(t, out)
	assert.True(t, out.Request.Response.Complete)
	assert.False(t, o.HasPending(b.ID()))

	next, err := o.SendRequest(context.Background(), b.ID(), "and carry on", SendOptions{})
	require.NoError(t, err)
	require.NotNil(t, next)
	<-h.started
	o.CancelCurrentRequestForSession(b.ID())
	waitDone(t, next)
}

func TestAdoptRequestLocationMismatch(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	a := o.StartSession(context.Background(), types.LocationPanel)
	b := o.StartSession(context.Background(), types.LocationTerminal)

	out, err := o.SendRequest(context.Background(), a.ID(), "stay put", SendOptions{})
	require.NoError(t, err)
	waitDone(t, out)

	err = o.AdoptRequest(out.Request, b.ID())
	require.Error(t, err)
	require.Len(t, a.GetRequests(), 1)
}

func TestAddCompleteRequest(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	sess := o.StartSession(context.Background(), types.LocationPanel)

	req, err := o.AddCompleteRequest(sess.ID(), "imported question", types.VariableData{},
		[]types.ResponsePart{&types.MarkdownPart{Kind: "markdown", Content: "imported answer"}},
		&types.Result{}, "assistant", "")
	require.NoError(t, err)

	assert.True(t, req.Response.Complete)
	require.Len(t, req.Response.Parts, 1)
	assert.Equal(t, "assistant", req.Response.AgentID)
	assert.False(t, o.HasPending(sess.ID()))
}

func TestClearSessionPersistsNonEmpty(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	sess := o.StartSession(context.Background(), types.LocationPanel)
	id := sess.ID()

	out, err := o.SendRequest(context.Background(), id, "keep this", SendOptions{})
	require.NoError(t, err)
	waitDone(t, out)

	require.NoError(t, o.ClearSession(context.Background(), id))
	assert.True(t, sess.Disposed())
	_, live := o.GetSession(id)
	assert.False(t, live)

	empty, err := o.IsPersistedSessionEmpty(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, empty)

	restored, err := o.GetOrRestoreSession(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, restored)
	require.Len(t, restored.GetRequests(), 1)
	assert.Equal(t, "keep this", restored.GetRequests()[0].Text)
}

func TestClearSessionWithInFlightRequest(t *testing.T) {
	h := newBlockingHandler()
	o := newTestOrchestrator(t, h)
	sess := o.StartSession(context.Background(), types.LocationPanel)
	id := sess.ID()

	out, err := o.SendRequest(context.Background(), id, "clear me mid-flight", SendOptions{})
	require.NoError(t, err)
	<-h.started

	// Disposal must wait for the dispatch to wind down; the dispatch
	// finishing against an already-disposed session would panic.
	require.NoError(t, o.ClearSession(context.Background(), id))
	waitDone(t, out)

	assert.True(t, out.Request.Response.Canceled)
	assert.True(t, out.Request.Response.Complete)
	assert.True(t, sess.Disposed())
	assert.False(t, o.HasPending(id))
}

func TestRemoveHistoryEntryWithInFlightRequest(t *testing.T) {
	h := newBlockingHandler()
	o := newTestOrchestrator(t, h)
	sess := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), sess.ID(), "forget me mid-flight", SendOptions{})
	require.NoError(t, err)
	<-h.started

	require.NoError(t, o.RemoveHistoryEntry(context.Background(), sess.ID()))
	waitDone(t, out)

	assert.True(t, sess.Disposed())
	assert.True(t, out.Request.Response.Complete)
	assert.False(t, o.HasPending(sess.ID()))
}

func TestClearSessionDropsEmpty(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	sess := o.StartSession(context.Background(), types.LocationPanel)
	id := sess.ID()

	require.NoError(t, o.ClearSession(context.Background(), id))

	restored, err := o.GetOrRestoreSession(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, restored)
}

func TestSaveStateAndReload(t *testing.T) {
	st := storage.New(t.TempDir())
	o := newTestOrchestrator(t, nil, func(opts *Options) {
		opts.Storage = st
	})
	sess := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), sess.ID(), "persist me", SendOptions{})
	require.NoError(t, err)
	waitDone(t, out)

	require.NoError(t, o.SaveState(context.Background()))
	assert.False(t, sess.IsNew())

	// A second orchestrator over the same storage sees the session.
	reg := agent.NewRegistry()
	reg.Register(&agent.Agent{ID: "assistant", IsDefault: true, Handler: &agent.EchoHandler{}})
	o2, err := NewOrchestrator(context.Background(), Options{
		Storage: st, Registry: reg, Config: &types.Config{}, Scope: "test",
	})
	require.NoError(t, err)

	assert.True(t, o2.HasSessions(context.Background()))
	history, err := o2.GetHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, sess.ID(), history[0].SessionID)
	assert.Equal(t, "persist me", history[0].Title)
	assert.False(t, history[0].IsActive)

	restored, err := o2.GetOrRestoreSession(context.Background(), sess.ID())
	require.NoError(t, err)
	require.NotNil(t, restored)
	require.Len(t, restored.GetRequests(), 1)
}

func TestTransferRoundTrip(t *testing.T) {
	st := storage.New(t.TempDir())
	o := newTestOrchestrator(t, nil, func(opts *Options) {
		opts.Storage = st
	})
	sess := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), sess.ID(), "take me along", SendOptions{})
	require.NoError(t, err)
	waitDone(t, out)

	target := types.FileURI("/workspaces/other")
	require.NoError(t, o.TransferSession(context.Background(), sess.ID(), target, "draft input", "agent"))

	// Wrong workspace claims nothing.
	rec, err := o.ClaimTransfer(context.Background(), types.FileURI("/workspaces/elsewhere"))
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = o.ClaimTransfer(context.Background(), target)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, sess.ID(), rec.Chat.SessionID)
	assert.Equal(t, "draft input", rec.InputValue)
	assert.Equal(t, types.LocationPanel, rec.Location)

	// A transfer is claimed at most once.
	rec, err = o.ClaimTransfer(context.Background(), target)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRemoveHistoryEntry(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	sess := o.StartSession(context.Background(), types.LocationPanel)

	out, err := o.SendRequest(context.Background(), sess.ID(), "forget me", SendOptions{})
	require.NoError(t, err)
	waitDone(t, out)

	require.NoError(t, o.RemoveHistoryEntry(context.Background(), sess.ID()))
	assert.True(t, sess.Disposed())

	history, err := o.GetHistory(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.False(t, o.HasSessions(context.Background()))
}
