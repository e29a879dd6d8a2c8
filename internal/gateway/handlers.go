package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/bridge-echo/internal/dispatch"
	"github.com/nextlevelbuilder/bridge-echo/internal/queue"
	"github.com/nextlevelbuilder/bridge-echo/internal/tracker"
)

// chatRequest is the generic ingress payload. Channel defaults to
// "discord" and sender to the channel name, so a bare curl still works.
type chatRequest struct {
	Message  string          `json:"message"`
	Channel  string          `json:"channel"`
	Sender   string          `json:"sender"`
	Metadata queue.Metadata  `json:"metadata"`
	Callback *queue.Callback `json:"callback"`
}

type sessionStartedRequest struct {
	CallSID   string `json:"call_sid"`
	Sender    string `json:"sender"`
	Transport string `json:"transport"`
}

type callEndedRequest struct {
	CallSID string `json:"call_sid"`
}

// statusResponse is shared by /api/status and the stream.
type statusResponse struct {
	Active    []tracker.ActiveSnapshot   `json:"active"`
	Completed []tracker.CompletedRequest `json:"completed"`
}

// handleChat accepts one message, queues it, and blocks until the worker
// answers. Slow responses are expected here: callers that cannot wait
// should pass a callback and ignore the body.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"response": "Missing message"})
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"response": "Missing message"})
		return
	}

	channel := req.Channel
	if channel == "" {
		channel = "discord"
	}
	sender := req.Sender
	if sender == "" {
		sender = channel
	}

	reply := s.dispatcher.Submit(r.Context(), dispatch.Inbound{
		Message:  message,
		Channel:  channel,
		Sender:   sender,
		Metadata: req.Metadata,
		Callback: req.Callback,
	})

	text, err := reply.Wait(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"response": "Worker dropped the request"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": text})
}

// handleSessionStarted registers a live voice call so responses for its
// sender get rerouted into the call.
func (s *Server) handleSessionStarted(w http.ResponseWriter, r *http.Request) {
	var req sessionStartedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CallSID == "" || req.Sender == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error"})
		return
	}

	s.voice.Touch(req.Sender, req.CallSID)
	slog.Info("voice session started",
		"call_sid", req.CallSID,
		"sender", req.Sender,
		"transport", req.Transport,
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCallEnded(w http.ResponseWriter, r *http.Request) {
	var req callEndedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CallSID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error"})
		return
	}

	s.voice.Remove(req.CallSID)
	slog.Info("voice session ended", "call_sid", req.CallSID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) snapshot() statusResponse {
	return statusResponse{
		Active:    s.tracker.ActiveSnapshots(),
		Completed: s.tracker.CompletedSnapshots(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
