package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/bridge-echo/internal/claude"
	"github.com/nextlevelbuilder/bridge-echo/internal/discord"
	"github.com/nextlevelbuilder/bridge-echo/internal/queue"
	"github.com/nextlevelbuilder/bridge-echo/internal/tracker"
	"github.com/nextlevelbuilder/bridge-echo/internal/voice"
)

type invocation struct {
	prompt    string
	sessionID string
	selfDoc   string
}

// stubAssistant records invocations and answers via fn (or "ok" when fn
// is nil). n is the zero-based call index.
type stubAssistant struct {
	mu    sync.Mutex
	calls []invocation
	fn    func(n int, prompt string) claude.Response
}

func (s *stubAssistant) Invoke(_ context.Context, prompt, sessionID, selfDoc string) claude.Response {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, invocation{prompt, sessionID, selfDoc})
	fn := s.fn
	s.mu.Unlock()

	if fn != nil {
		return fn(n, prompt)
	}
	return claude.Response{Text: "ok"}
}

func (s *stubAssistant) invocations() []invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]invocation, len(s.calls))
	copy(out, s.calls)
	return out
}

// runWorker starts w's loop and stops it when the test ends.
func runWorker(t *testing.T, opts Options) *Worker {
	t.Helper()
	w := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	return w
}

func submit(q *queue.Queue, req *queue.Request) *queue.Reply {
	req.Reply = queue.NewReply()
	q.Send(req)
	return req.Reply
}

func waitText(t *testing.T, r *queue.Reply) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	text, err := r.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return text
}

type injectRecord struct {
	path    string
	auth    string
	callSID string
	text    string
}

// injectServer fakes the voice service's inject endpoint.
func injectServer(t *testing.T, status int) (*httptest.Server, func() []injectRecord) {
	t.Helper()
	var mu sync.Mutex
	var records []injectRecord

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			CallSID string `json:"call_sid"`
			Text    string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad inject payload: %v", err)
		}
		mu.Lock()
		records = append(records, injectRecord{
			path:    r.URL.Path,
			auth:    r.Header.Get("Authorization"),
			callSID: body.CallSID,
			text:    body.Text,
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []injectRecord {
		mu.Lock()
		defer mu.Unlock()
		out := make([]injectRecord, len(records))
		copy(out, records)
		return out
	}
}

func TestProcessDeliversResponse(t *testing.T) {
	stub := &stubAssistant{fn: func(_ int, prompt string) claude.Response {
		return claude.Response{Text: "echo: " + prompt}
	}}
	q := queue.New()
	tr := tracker.New()
	runWorker(t, Options{
		Queue:      q,
		Tracker:    tr,
		Voice:      voice.NewRegistry(time.Minute),
		Assistant:  stub,
		SessionTTL: time.Hour,
	})

	reply := submit(q, &queue.Request{
		Channel:         "slack",
		Sender:          "dave",
		Prompt:          "p1",
		OriginalMessage: "hi",
	})

	if got := waitText(t, reply); got != "echo: p1" {
		t.Errorf("response = %q, want %q", got, "echo: p1")
	}
	if active := tr.ActiveSnapshots(); len(active) != 0 {
		t.Errorf("active after completion = %d, want 0", len(active))
	}
	completed := tr.CompletedSnapshots()
	if len(completed) != 1 {
		t.Fatalf("completed = %d, want 1", len(completed))
	}
	if completed[0].Channel != "slack" || completed[0].MessagePreview != "hi" {
		t.Errorf("completed record = %+v", completed[0])
	}
}

func TestSessionCarriesAcrossRequests(t *testing.T) {
	stub := &stubAssistant{fn: func(n int, _ string) claude.Response {
		if n == 0 {
			return claude.Response{Text: "one", SessionID: "s-1"}
		}
		return claude.Response{Text: "two"}
	}}
	q := queue.New()
	runWorker(t, Options{
		Queue:      q,
		Tracker:    tracker.New(),
		Voice:      voice.NewRegistry(time.Minute),
		Assistant:  stub,
		SessionTTL: time.Hour,
	})

	waitText(t, submit(q, &queue.Request{Channel: "slack", Sender: "d", Prompt: "a"}))
	waitText(t, submit(q, &queue.Request{Channel: "slack", Sender: "d", Prompt: "b"}))

	calls := stub.invocations()
	if len(calls) != 2 {
		t.Fatalf("invocations = %d, want 2", len(calls))
	}
	if calls[0].sessionID != "" {
		t.Errorf("first call sessionID = %q, want empty", calls[0].sessionID)
	}
	if calls[1].sessionID != "s-1" {
		t.Errorf("second call sessionID = %q, want %q", calls[1].sessionID, "s-1")
	}
}

func TestZeroTTLStartsFreshEveryRequest(t *testing.T) {
	stub := &stubAssistant{fn: func(n int, _ string) claude.Response {
		return claude.Response{Text: "t", SessionID: "s-1"}
	}}
	q := queue.New()
	runWorker(t, Options{
		Queue:     q,
		Tracker:   tracker.New(),
		Voice:     voice.NewRegistry(time.Minute),
		Assistant: stub,
		// SessionTTL zero: any idle gap expires the session.
	})

	waitText(t, submit(q, &queue.Request{Channel: "slack", Sender: "d", Prompt: "a"}))
	waitText(t, submit(q, &queue.Request{Channel: "slack", Sender: "d", Prompt: "b"}))

	calls := stub.invocations()
	if calls[1].sessionID != "" {
		t.Errorf("second call sessionID = %q, want empty (expired)", calls[1].sessionID)
	}
}

func TestVoiceRequestTouchesRegistry(t *testing.T) {
	q := queue.New()
	reg := voice.NewRegistry(time.Minute)
	runWorker(t, Options{
		Queue:      q,
		Tracker:    tracker.New(),
		Voice:      reg,
		Assistant:  &stubAssistant{},
		SessionTTL: time.Hour,
	})

	reply := submit(q, &queue.Request{
		Channel:  "voice",
		Sender:   "D",
		Prompt:   "p",
		Metadata: queue.Metadata{CallSID: "CA1"},
	})

	// Voice requests answer on their own channel, never rerouted.
	if got := waitText(t, reply); got != "ok" {
		t.Errorf("response = %q, want %q", got, "ok")
	}
	sid, ok := reg.ActiveCallSID("D")
	if !ok || sid != "CA1" {
		t.Errorf("ActiveCallSID(D) = %q, %v, want CA1, true", sid, ok)
	}
}

func TestResponseInjectedIntoActiveCall(t *testing.T) {
	srv, got := injectServer(t, http.StatusOK)
	q := queue.New()
	reg := voice.NewRegistry(time.Minute)
	reg.Touch("D", "CA9")

	runWorker(t, Options{
		Queue:      q,
		Tracker:    tracker.New(),
		Voice:      reg,
		Assistant:  &stubAssistant{},
		SessionTTL: time.Hour,
		VoiceURL:   srv.URL + "/", // trailing slash must not double up
		VoiceToken: "vt-1",
	})

	reply := submit(q, &queue.Request{Channel: "discord", Sender: "D", Prompt: "p"})

	if text := waitText(t, reply); text != "Responding on call." {
		t.Errorf("response = %q, want voice ack", text)
	}
	records := got()
	if len(records) != 1 {
		t.Fatalf("inject posts = %d, want 1", len(records))
	}
	if records[0].path != "/api/inject" {
		t.Errorf("inject path = %q, want /api/inject", records[0].path)
	}
	if records[0].auth != "Bearer vt-1" {
		t.Errorf("inject auth = %q, want bearer token", records[0].auth)
	}
	if records[0].callSID != "CA9" || records[0].text != "ok" {
		t.Errorf("inject payload = %+v", records[0])
	}
}

func TestInjectFailureFallsBackToChannel(t *testing.T) {
	srv, got := injectServer(t, http.StatusInternalServerError)
	q := queue.New()
	reg := voice.NewRegistry(time.Minute)
	reg.Touch("D", "CA9")

	runWorker(t, Options{
		Queue:      q,
		Tracker:    tracker.New(),
		Voice:      reg,
		Assistant:  &stubAssistant{},
		SessionTTL: time.Hour,
		VoiceURL:   srv.URL,
	})

	reply := submit(q, &queue.Request{Channel: "discord", Sender: "D", Prompt: "p"})

	if gotText := waitText(t, reply); gotText != "ok" {
		t.Errorf("response = %q, want original text on inject failure", gotText)
	}
	if records := got(); len(records) != 1 {
		t.Errorf("inject posts = %d, want 1", len(records))
	}
}

func TestNoRerouteWithoutVoiceURL(t *testing.T) {
	q := queue.New()
	reg := voice.NewRegistry(time.Minute)
	reg.Touch("D", "CA9")

	runWorker(t, Options{
		Queue:      q,
		Tracker:    tracker.New(),
		Voice:      reg,
		Assistant:  &stubAssistant{},
		SessionTTL: time.Hour,
	})

	reply := submit(q, &queue.Request{Channel: "discord", Sender: "D", Prompt: "p"})
	if got := waitText(t, reply); got != "ok" {
		t.Errorf("response = %q, want %q", got, "ok")
	}
}

// discordServer fakes the Discord REST API for callback delivery.
func discordServer(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var contents []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad discord payload: %v", err)
		}
		mu.Lock()
		contents = append(contents, body.Content)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := make([]string, len(contents))
		copy(out, contents)
		return out
	}
}

func TestDiscordCallbackDelivered(t *testing.T) {
	srv, got := discordServer(t)
	q := queue.New()
	runWorker(t, Options{
		Queue:      q,
		Tracker:    tracker.New(),
		Voice:      voice.NewRegistry(time.Minute),
		Assistant:  &stubAssistant{},
		SessionTTL: time.Hour,
		Discord:    discord.NewClient("tok-1", srv.URL),
	})

	reply := submit(q, &queue.Request{
		Channel:  "api",
		Sender:   "svc",
		Prompt:   "p",
		Metadata: queue.Metadata{DiscordChannelID: "555"},
		Callback: &queue.Callback{Type: "discord"},
	})

	if gotText := waitText(t, reply); gotText != "ok" {
		t.Errorf("response = %q, want %q", gotText, "ok")
	}
	posts := got()
	if len(posts) != 1 || posts[0] != "ok" {
		t.Errorf("discord posts = %v, want [ok]", posts)
	}
}

func TestDiscordCallbackSkippedWhenInjected(t *testing.T) {
	injSrv, _ := injectServer(t, http.StatusOK)
	dcSrv, got := discordServer(t)
	q := queue.New()
	reg := voice.NewRegistry(time.Minute)
	reg.Touch("D", "CA9")

	runWorker(t, Options{
		Queue:      q,
		Tracker:    tracker.New(),
		Voice:      reg,
		Assistant:  &stubAssistant{},
		SessionTTL: time.Hour,
		VoiceURL:   injSrv.URL,
		Discord:    discord.NewClient("tok-1", dcSrv.URL),
	})

	reply := submit(q, &queue.Request{
		Channel:  "discord",
		Sender:   "D",
		Prompt:   "p",
		Metadata: queue.Metadata{DiscordChannelID: "555"},
		Callback: &queue.Callback{Type: "discord"},
	})

	if gotText := waitText(t, reply); gotText != "Responding on call." {
		t.Errorf("response = %q, want voice ack", gotText)
	}
	if posts := got(); len(posts) != 0 {
		t.Errorf("discord posts = %v, want none (response went to voice)", posts)
	}
}

func TestWebhookCallbackPayload(t *testing.T) {
	var mu sync.Mutex
	var payloads []callbackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p callbackPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("bad webhook payload: %v", err)
		}
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	q := queue.New()
	runWorker(t, Options{
		Queue:      q,
		Tracker:    tracker.New(),
		Voice:      voice.NewRegistry(time.Minute),
		Assistant:  &stubAssistant{},
		SessionTTL: time.Hour,
	})

	reply := submit(q, &queue.Request{
		Channel:  "slack",
		Sender:   "S",
		Prompt:   "p",
		Metadata: queue.Metadata{WorkflowID: "wf-1"},
		Callback: &queue.Callback{Type: "webhook", URL: srv.URL},
	})
	waitText(t, reply)

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 1 {
		t.Fatalf("webhook posts = %d, want 1", len(payloads))
	}
	p := payloads[0]
	if p.Response != "ok" || p.Channel != "slack" || p.Sender != "S" {
		t.Errorf("payload = %+v", p)
	}
	if p.Metadata.WorkflowID != "wf-1" {
		t.Errorf("payload metadata = %+v, want workflow_id wf-1", p.Metadata)
	}
}

func TestUnknownCallbackTypeIgnored(t *testing.T) {
	q := queue.New()
	runWorker(t, Options{
		Queue:      q,
		Tracker:    tracker.New(),
		Voice:      voice.NewRegistry(time.Minute),
		Assistant:  &stubAssistant{},
		SessionTTL: time.Hour,
	})

	reply := submit(q, &queue.Request{
		Channel:  "api",
		Sender:   "svc",
		Prompt:   "p",
		Callback: &queue.Callback{Type: "carrier-pigeon"},
	})
	if got := waitText(t, reply); got != "ok" {
		t.Errorf("response = %q, want %q", got, "ok")
	}
}

func TestPanicDropsReplyAndLoopSurvives(t *testing.T) {
	stub := &stubAssistant{fn: func(n int, _ string) claude.Response {
		if n == 0 {
			panic("boom")
		}
		return claude.Response{Text: "recovered"}
	}}
	q := queue.New()
	runWorker(t, Options{
		Queue:      q,
		Tracker:    tracker.New(),
		Voice:      voice.NewRegistry(time.Minute),
		Assistant:  stub,
		SessionTTL: time.Hour,
	})

	first := submit(q, &queue.Request{Channel: "slack", Sender: "d", Prompt: "a"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := first.Wait(ctx); !errors.Is(err, queue.ErrWorkerDropped) {
		t.Fatalf("Wait error = %v, want ErrWorkerDropped", err)
	}

	second := submit(q, &queue.Request{Channel: "slack", Sender: "d", Prompt: "b"})
	if got := waitText(t, second); got != "recovered" {
		t.Errorf("response after panic = %q, want %q", got, "recovered")
	}
}

func TestSelfDocReadFreshEachRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claude.md")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	stub := &stubAssistant{}
	q := queue.New()
	runWorker(t, Options{
		Queue:      q,
		Tracker:    tracker.New(),
		Voice:      voice.NewRegistry(time.Minute),
		Assistant:  stub,
		SessionTTL: time.Hour,
		SelfPath:   path,
	})

	waitText(t, submit(q, &queue.Request{Channel: "slack", Sender: "d", Prompt: "a"}))
	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitText(t, submit(q, &queue.Request{Channel: "slack", Sender: "d", Prompt: "b"}))

	calls := stub.invocations()
	if calls[0].selfDoc != "v1" || calls[1].selfDoc != "v2" {
		t.Errorf("self docs = %q, %q, want v1 then v2", calls[0].selfDoc, calls[1].selfDoc)
	}
}
