package e2e_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chatkit-ai/chatkit/internal/agent"
	"github.com/chatkit-ai/chatkit/internal/chat"
	"github.com/chatkit-ai/chatkit/internal/event"
	"github.com/chatkit-ai/chatkit/internal/storage"
	"github.com/chatkit-ai/chatkit/pkg/types"
)

// parkedHandler blocks until released or cancelled, for cancellation flows.
type parkedHandler struct {
	mu      sync.Mutex
	running int
}

func (h *parkedHandler) Invoke(ctx context.Context, req *agent.InvocationRequest, progress agent.ProgressFunc, history []agent.HistoryEntry) (*types.Result, error) {
	h.mu.Lock()
	h.running++
	h.mu.Unlock()
	progress(&types.MarkdownPart{Kind: "markdown", Content: "working"})
	<-ctx.Done()
	return nil, ctx.Err()
}

func newRegistry(defaultHandler agent.Handler) *agent.Registry {
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
	return reg
}

func newOrchestrator(st *storage.Storage, reg *agent.Registry, cfg *types.Config) *chat.Orchestrator {
	if cfg == nil {
		cfg = &types.Config{}
	}
	o, err := chat.NewOrchestrator(context.Background(), chat.Options{
		Storage:  st,
		Registry: reg,
		Config:   cfg,
		Scope:    "e2e",
	})
	Expect(err).NotTo(HaveOccurred())
	return o
}

func sendAndWait(o *chat.Orchestrator, sessionID, text string) *chat.SendOutcome {
	out, err := o.SendRequest(context.Background(), sessionID, text, chat.SendOptions{})
	Expect(err).NotTo(HaveOccurred())
	Expect(out).NotTo(BeNil())
	Eventually(out.ResponseComplete()).Within(5 * time.Second).Should(BeClosed())
	return out
}

var _ = Describe("Session Lifecycle", func() {
	var (
		st  *storage.Storage
		orc *chat.Orchestrator
	)

	BeforeEach(func() {
		st = storage.New(GinkgoT().TempDir())
		orc = newOrchestrator(st, newRegistry(nil), nil)
	})

	It("streams a full request/response exchange", func() {
		sess := orc.StartSession(context.Background(), types.LocationPanel)

		var mu sync.Mutex
		var seen []event.EventType
		unsub := event.SubscribeAll(func(e event.Event) {
			mu.Lock()
			seen = append(seen, e.Type)
			mu.Unlock()
		})
		defer unsub()

		out := sendAndWait(orc, sess.ID(), "hello out there")

		req := out.Request
		Expect(req.Response.Complete).To(BeTrue())
		Expect(req.Response.Result).NotTo(BeNil())
		Expect(req.Response.Result.Error).To(BeNil())
		Expect(req.Response.Parts).NotTo(BeEmpty())

		mu.Lock()
		defer mu.Unlock()
		Expect(seen).To(ContainElement(event.RequestSubmitted))
		Expect(seen).To(ContainElement(event.ResponseProgress))
		Expect(seen).To(ContainElement(event.ResponseCompleted))
	})

	It("persists and restores a session across windows", func() {
		sess := orc.StartSession(context.Background(), types.LocationPanel)
		sendAndWait(orc, sess.ID(), "remember me across restarts")
		Expect(orc.SaveState(context.Background())).To(Succeed())

		// A fresh orchestrator over the same storage plays the part of
		// the next window.
		next := newOrchestrator(st, newRegistry(nil), nil)
		restored, err := next.GetOrRestoreSession(context.Background(), sess.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(restored).NotTo(BeNil())
		Expect(restored.GetRequests()).To(HaveLen(1))
		Expect(restored.GetRequests()[0].Text).To(Equal("remember me across restarts"))
		Expect(restored.GetRequests()[0].Response.Complete).To(BeTrue())
	})

	It("refuses a second send while a request is in flight", func() {
		parked := &parkedHandler{}
		busy := newOrchestrator(st, newRegistry(parked), nil)
		sess := busy.StartSession(context.Background(), types.LocationPanel)

		first, err := busy.SendRequest(context.Background(), sess.ID(), "first", chat.SendOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(first).NotTo(BeNil())
		Eventually(func() bool { return busy.HasPending(sess.ID()) }).Should(BeTrue())

		second, err := busy.SendRequest(context.Background(), sess.ID(), "second", chat.SendOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(BeNil())
		Expect(sess.GetRequests()).To(HaveLen(1))

		busy.CancelCurrentRequestForSession(sess.ID())
		Eventually(first.ResponseComplete()).Within(5 * time.Second).Should(BeClosed())
	})
})

var _ = Describe("Cancellation", func() {
	It("marks the response cancelled without a result and frees the session", func() {
		st := storage.New(GinkgoT().TempDir())
		orc := newOrchestrator(st, newRegistry(&parkedHandler{}), nil)
		sess := orc.StartSession(context.Background(), types.LocationPanel)

		out, err := orc.SendRequest(context.Background(), sess.ID(), "never finishes", chat.SendOptions{})
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() bool { return orc.HasPending(sess.ID()) }).Should(BeTrue())

		Expect(orc.CancelCurrentRequestForSession(sess.ID())).To(BeTrue())
		Eventually(out.ResponseComplete()).Within(5 * time.Second).Should(BeClosed())

		req := out.Request
		Expect(req.Response.Canceled).To(BeTrue())
		Expect(req.Response.Result).To(BeNil())
		Expect(orc.HasPending(sess.ID())).To(BeFalse())
	})
})

var _ = Describe("Multi-Window Reconciliation", func() {
	It("merges sessions written by concurrent windows", func() {
		st := storage.New(GinkgoT().TempDir())

		windowA := newOrchestrator(st, newRegistry(nil), nil)
		sessA := windowA.StartSession(context.Background(), types.LocationPanel)
		sendAndWait(windowA, sessA.ID(), "written by window A")
		Expect(windowA.SaveState(context.Background())).To(Succeed())

		windowB := newOrchestrator(st, newRegistry(nil), nil)
		sessB := windowB.StartSession(context.Background(), types.LocationPanel)
		sendAndWait(windowB, sessB.ID(), "written by window B")
		Expect(windowB.SaveState(context.Background())).To(Succeed())

		// Window A saving again must not clobber B's session.
		Expect(windowA.SaveState(context.Background())).To(Succeed())

		verify := newOrchestrator(st, newRegistry(nil), nil)
		history, err := verify.GetHistory(context.Background())
		Expect(err).NotTo(HaveOccurred())
		ids := []string{}
		for _, item := range history {
			ids = append(ids, item.SessionID)
		}
		Expect(ids).To(ConsistOf(sessA.ID(), sessB.ID()))
	})

	It("lets a deletion in one window win over another window's copy", func() {
		st := storage.New(GinkgoT().TempDir())

		windowA := newOrchestrator(st, newRegistry(nil), nil)
		sessA := windowA.StartSession(context.Background(), types.LocationPanel)
		sendAndWait(windowA, sessA.ID(), "short lived")
		Expect(windowA.SaveState(context.Background())).To(Succeed())

		windowB := newOrchestrator(st, newRegistry(nil), nil)

		Expect(windowA.RemoveHistoryEntry(context.Background(), sessA.ID())).To(Succeed())
		Expect(windowA.SaveState(context.Background())).To(Succeed())

		// Window B still knows the session locally but did not create
		// it; its save must not resurrect it.
		Expect(windowB.SaveState(context.Background())).To(Succeed())

		verify := newOrchestrator(st, newRegistry(nil), nil)
		history, err := verify.GetHistory(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(BeEmpty())
	})
})

var _ = Describe("Retention", func() {
	It("caps persisted sessions at the configured maximum", func() {
		st := storage.New(GinkgoT().TempDir())
		cfg := &types.Config{MaxPersistedSessions: 5}
		orc := newOrchestrator(st, newRegistry(nil), cfg)

		for i := 0; i < 8; i++ {
			sess := orc.StartSession(context.Background(), types.LocationPanel)
			sendAndWait(orc, sess.ID(), fmt.Sprintf("conversation %d", i))
		}
		Expect(orc.SaveState(context.Background())).To(Succeed())

		verify := newOrchestrator(st, newRegistry(nil), cfg)
		history, err := verify.GetHistory(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(HaveLen(5))
	})
})

var _ = Describe("Transfers", func() {
	It("moves a session to another workspace exactly once", func() {
		st := storage.New(GinkgoT().TempDir())
		orc := newOrchestrator(st, newRegistry(nil), nil)
		sess := orc.StartSession(context.Background(), types.LocationPanel)
		sendAndWait(orc, sess.ID(), "pack your bags")

		target := types.FileURI("/workspaces/target")
		Expect(orc.TransferSession(context.Background(), sess.ID(), target, "pending input", "chat")).To(Succeed())

		rec, err := orc.ClaimTransfer(context.Background(), target)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec).NotTo(BeNil())
		Expect(rec.Chat.SessionID).To(Equal(sess.ID()))
		Expect(rec.InputValue).To(Equal("pending input"))

		again, err := orc.ClaimTransfer(context.Background(), target)
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(BeNil())
	})
})
