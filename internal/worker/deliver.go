package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/bridge-echo/internal/queue"
)

// injectRequest is the voice service's inject payload.
type injectRequest struct {
	CallSID string `json:"call_sid"`
	Text    string `json:"text"`
}

// callbackPayload is POSTed to webhook callbacks.
type callbackPayload struct {
	Response string           `json:"response"`
	Channel  string           `json:"channel"`
	Sender   string           `json:"sender"`
	Metadata callbackMetadata `json:"metadata"`
}

type callbackMetadata struct {
	CallSID          string `json:"call_sid,omitempty"`
	DiscordChannelID string `json:"discord_channel_id,omitempty"`
	WorkflowID       string `json:"workflow_id,omitempty"`
}

// maybeInjectIntoVoice reroutes a non-voice response into the sender's
// active call, if there is one and a voice service is configured. Returns
// true when the voice service accepted the text.
func (w *Worker) maybeInjectIntoVoice(ctx context.Context, req *queue.Request, text string) bool {
	if req.Channel == "voice" {
		return false
	}
	callSID, ok := w.voice.ActiveCallSID(req.Sender)
	if !ok || w.voiceURL == "" {
		return false
	}

	slog.Info("routing response to active voice call",
		"sender", req.Sender,
		"call_sid", callSID,
	)
	if err := w.injectIntoCall(ctx, callSID, text); err != nil {
		slog.Warn("voice.inject_failed",
			"call_sid", callSID,
			"error", err,
		)
		w.metrics.RecordVoiceInject(ctx, "failed")
		return false
	}
	slog.Info("response injected into voice call", "call_sid", callSID)
	w.metrics.RecordVoiceInject(ctx, "injected")
	return true
}

func (w *Worker) injectIntoCall(ctx context.Context, callSID, text string) error {
	body, err := json.Marshal(injectRequest{CallSID: callSID, Text: text})
	if err != nil {
		return err
	}

	url := strings.TrimRight(w.voiceURL, "/") + "/api/inject"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if w.voiceToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.voiceToken)
	}

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("voice service returned %s", resp.Status)
	}
	return nil
}

// deliverCallback fans the response out to the request's callback. Voice
// rerouting already happened; a discord callback is skipped when the
// response went to the call instead.
func (w *Worker) deliverCallback(ctx context.Context, req *queue.Request, text string, injected bool) {
	switch req.Callback.Type {
	case "discord":
		if injected {
			return
		}
		w.deliverDiscord(ctx, req, text)
	case "webhook":
		w.deliverWebhook(ctx, req, text)
	default:
		slog.Warn("unknown callback type",
			"type", req.Callback.Type,
			"channel", req.Channel,
		)
	}
}

func (w *Worker) deliverDiscord(ctx context.Context, req *queue.Request, text string) {
	channelID := req.Metadata.DiscordChannelID
	if channelID == "" {
		slog.Warn("discord callback missing discord_channel_id", "sender", req.Sender)
		return
	}
	if w.discord == nil {
		slog.Warn("discord callback requested but BRIDGE_ECHO_DISCORD_BOT_TOKEN not set")
		return
	}
	w.discord.SendMessage(ctx, channelID, text)
	slog.Info("response sent to discord channel", "channel_id", channelID)
}

func (w *Worker) deliverWebhook(ctx context.Context, req *queue.Request, text string) {
	url := req.Callback.URL
	if url == "" {
		return
	}

	payload := callbackPayload{
		Response: text,
		Channel:  req.Channel,
		Sender:   req.Sender,
		Metadata: callbackMetadata{
			CallSID:          req.Metadata.CallSID,
			DiscordChannelID: req.Metadata.DiscordChannelID,
			WorkflowID:       req.Metadata.WorkflowID,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("callback payload marshal failed", "error", err)
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Warn("callback webhook request build failed", "url", url, "error", err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		slog.Warn("callback webhook failed", "url", url, "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("callback webhook returned non-success status",
			"url", url,
			"status", resp.Status,
		)
	}
}
