// Package worker runs the single consumer loop that feeds queued requests
// to the assistant one at a time. Serialisation is the point: the Claude
// CLI holds one conversation, so concurrency lives in the ingresses and
// the queue, never here.
package worker

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nextlevelbuilder/bridge-echo/internal/claude"
	"github.com/nextlevelbuilder/bridge-echo/internal/discord"
	"github.com/nextlevelbuilder/bridge-echo/internal/observe"
	"github.com/nextlevelbuilder/bridge-echo/internal/queue"
	"github.com/nextlevelbuilder/bridge-echo/internal/tracker"
	"github.com/nextlevelbuilder/bridge-echo/internal/voice"
)

// voiceAck is returned on the original channel when the real response was
// rerouted into an active voice call.
const voiceAck = "Responding on call."

// responsePreviewLimit bounds response previews in log lines.
const responsePreviewLimit = 120

// Assistant produces a response for one prompt. *claude.Invoker satisfies
// it; tests substitute a stub.
type Assistant interface {
	Invoke(ctx context.Context, prompt, sessionID, selfDoc string) claude.Response
}

// Options configures a Worker. Queue, Tracker, Voice, and Assistant are
// required; everything else is optional.
type Options struct {
	Queue     *queue.Queue
	Tracker   *tracker.Tracker
	Voice     *voice.Registry
	Assistant Assistant

	// Discord posts callback responses. Nil when no bot token is
	// configured; discord callbacks are then skipped with a warning.
	Discord *discord.Client

	// SessionTTL is the idle window after which the assistant session is
	// discarded. Zero means every request starts a fresh session.
	SessionTTL time.Duration

	// SelfPath points at the self-description document appended to the
	// assistant's system prompt. Read fresh on every request so edits
	// land without a restart.
	SelfPath string

	// VoiceURL is the voice service base URL for cross-channel inject.
	// Empty disables rerouting.
	VoiceURL   string
	VoiceToken string

	// Metrics defaults to observe.DefaultMetrics when nil.
	Metrics *observe.Metrics
}

// Worker consumes the queue. Session state (sessionID, lastUsed) is only
// touched from Run's goroutine, so it needs no locking.
type Worker struct {
	queue     *queue.Queue
	tracker   *tracker.Tracker
	voice     *voice.Registry
	assistant Assistant
	discord   *discord.Client
	metrics   *observe.Metrics

	sessionTTL time.Duration
	selfPath   string
	voiceURL   string
	voiceToken string

	httpClient *http.Client

	sessionID string
	lastUsed  time.Time
}

// New builds a Worker from opts.
func New(opts Options) *Worker {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Worker{
		queue:      opts.Queue,
		tracker:    opts.Tracker,
		voice:      opts.Voice,
		assistant:  opts.Assistant,
		discord:    opts.Discord,
		metrics:    metrics,
		sessionTTL: opts.SessionTTL,
		selfPath:   opts.SelfPath,
		voiceURL:   opts.VoiceURL,
		voiceToken: opts.VoiceToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		lastUsed:   time.Now(),
	}
}

// Run processes queued requests one at a time until ctx is cancelled.
// Exactly one Run per Worker: the sequential loop is what guarantees the
// assistant never sees two conversations at once.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("worker started", "session_ttl", w.sessionTTL)
	for {
		req, err := w.queue.Recv(ctx)
		if err != nil {
			slog.Info("worker stopped")
			return err
		}
		w.metrics.QueueDepth.Add(ctx, -1)
		w.process(ctx, req)
	}
}

// process handles one request end to end. A panic anywhere inside drops
// the reply sink so the waiting ingress unblocks; the loop carries on.
func (w *Worker) process(ctx context.Context, req *queue.Request) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker panic recovered, dropping request",
				"channel", req.Channel,
				"sender", req.Sender,
				"panic", r,
			)
			req.Reply.Drop()
		}
	}()

	if w.sessionID != "" && time.Since(w.lastUsed) > w.sessionTTL {
		slog.Info("assistant session expired after idle timeout, starting fresh",
			"idle", time.Since(w.lastUsed).Round(time.Second),
			"ttl", w.sessionTTL,
		)
		w.sessionID = ""
		w.metrics.SessionResets.Add(ctx, 1)
	}

	// A voice request doubles as a liveness signal for its call.
	if req.Channel == "voice" && req.Metadata.CallSID != "" {
		w.voice.Touch(req.Sender, req.Metadata.CallSID)
	}

	id := w.tracker.Start(req.Channel, req.Sender, req.OriginalMessage)
	w.metrics.RecordRequestStarted(ctx, req.Channel)
	start := time.Now()

	resp := w.assistant.Invoke(ctx, req.Prompt, w.sessionID, w.readSelfDoc())

	w.tracker.Complete(id, resp.Text)
	if resp.SessionID != "" {
		w.sessionID = resp.SessionID
	}
	w.lastUsed = time.Now()

	elapsed := time.Since(start)
	w.metrics.RecordRequestCompleted(ctx, req.Channel, elapsed.Seconds())
	slog.Info("response ready",
		"id", id,
		"channel", req.Channel,
		"elapsed", elapsed.Round(time.Millisecond),
		"preview", tracker.Preview(resp.Text, responsePreviewLimit),
	)

	injected := w.maybeInjectIntoVoice(ctx, req, resp.Text)

	if req.Callback != nil {
		w.deliverCallback(ctx, req, resp.Text, injected)
	}

	if injected {
		req.Reply.Respond(voiceAck)
	} else {
		req.Reply.Respond(resp.Text)
	}
}

// readSelfDoc loads the self-description fresh for each request. An
// unreadable file degrades to no document.
func (w *Worker) readSelfDoc() string {
	if w.selfPath == "" {
		return ""
	}
	data, err := os.ReadFile(w.selfPath)
	if err != nil {
		slog.Debug("self doc unreadable", "path", w.selfPath, "error", err)
		return ""
	}
	return string(data)
}
