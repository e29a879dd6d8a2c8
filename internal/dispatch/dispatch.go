// Package dispatch turns inbound messages from any ingress into queued
// work: trust framing, injection scanning, and the cross-channel priority
// decision all happen here so every ingress behaves identically.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/bridge-echo/internal/injection"
	"github.com/nextlevelbuilder/bridge-echo/internal/observe"
	"github.com/nextlevelbuilder/bridge-echo/internal/prompt"
	"github.com/nextlevelbuilder/bridge-echo/internal/queue"
	"github.com/nextlevelbuilder/bridge-echo/internal/tracker"
)

// Inbound is one message as an ingress hands it over. Channel and Sender
// must already be defaulted by the caller.
type Inbound struct {
	Message  string
	Channel  string
	Sender   string
	Metadata queue.Metadata
	Callback *queue.Callback
}

// Dispatcher enqueues inbound messages for the worker.
type Dispatcher struct {
	Queue    *queue.Queue
	Tracker  *tracker.Tracker
	Detector *injection.Detector
	Metrics  *observe.Metrics
}

// Submit frames the message, enqueues it, and returns the reply sink the
// caller should wait on. A sender with a request already in flight on a
// different channel jumps the queue so the conversation stays merged.
func (d *Dispatcher) Submit(ctx context.Context, in Inbound) *queue.Reply {
	slog.Info("message received",
		"channel", in.Channel,
		"sender", in.Sender,
		"preview", tracker.Preview(in.Message, 120),
	)

	if d.Detector.Detect(in.Message) {
		slog.Warn("security.injection_detected",
			"channel", in.Channel,
			"sender", in.Sender,
		)
		d.Metrics.RecordInjectionDetected(ctx, in.Channel)
	}

	req := &queue.Request{
		Channel:         in.Channel,
		Sender:          in.Sender,
		Metadata:        in.Metadata,
		Callback:        in.Callback,
		Prompt:          prompt.Build(in.Message, in.Channel, d.Detector),
		OriginalMessage: in.Message,
		Reply:           queue.NewReply(),
	}

	if d.Tracker.HasActiveOnOtherChannel(in.Sender, in.Channel) {
		slog.Info("queue.priority_enqueue",
			"channel", in.Channel,
			"sender", in.Sender,
		)
		d.Queue.SendPriority(req)
	} else {
		d.Queue.Send(req)
	}
	d.Metrics.QueueDepth.Add(ctx, 1)

	return req.Reply
}
