// Package queue holds the priority-aware FIFO that feeds the single worker,
// and the in-flight request type that travels through it.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrWorkerDropped reports that the worker abandoned a request without
// producing a response.
var ErrWorkerDropped = errors.New("worker dropped the request")

// Metadata carries optional routing hints supplied by the ingress caller.
type Metadata struct {
	CallSID          string `json:"call_sid,omitempty"`
	DiscordChannelID string `json:"discord_channel_id,omitempty"`
	WorkflowID       string `json:"workflow_id,omitempty"`
	Context          string `json:"context,omitempty"`
}

// Callback names an additional delivery sink for the response.
type Callback struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// Request is one unit of work. The queue owns it from Send until the worker
// takes it via Recv; the worker must then settle Reply exactly once.
type Request struct {
	Channel         string
	Sender          string
	Metadata        Metadata
	Callback        *Callback
	Prompt          string
	OriginalMessage string
	Reply           *Reply
}

// Reply is the one-shot sink carrying a request's outcome back to its
// producer. Exactly one of Respond or Drop takes effect; later calls are
// no-ops, so a worker crash path can always Drop safely.
type Reply struct {
	once sync.Once
	ch   chan string
}

func NewReply() *Reply {
	return &Reply{ch: make(chan string, 1)}
}

// Respond delivers text to the producer. If the producer has stopped
// waiting the value is parked in the buffer and collected by nobody.
func (r *Reply) Respond(text string) {
	r.once.Do(func() {
		r.ch <- text
	})
}

// Drop abandons the reply; the producer's Wait fails with ErrWorkerDropped.
func (r *Reply) Drop() {
	r.once.Do(func() {
		close(r.ch)
	})
}

// Wait blocks until the worker settles the reply or ctx ends.
func (r *Reply) Wait(ctx context.Context) (string, error) {
	select {
	case text, ok := <-r.ch:
		if !ok {
			return "", ErrWorkerDropped
		}
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Queue is an unbounded deque with a coalescing wake. Send appends at the
// back, SendPriority prepends at the front. Producers never block on
// capacity; backpressure happens on the reply sink.
type Queue struct {
	mu    sync.Mutex
	items []*Request

	// notify has capacity one so an unconsumed wake is retained for the
	// next waiter instead of being lost.
	notify chan struct{}
}

func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Send enqueues at the back (normal FIFO ordering).
func (q *Queue) Send(req *Request) {
	q.mu.Lock()
	q.items = append(q.items, req)
	q.mu.Unlock()
	q.wake()
}

// SendPriority enqueues at the front, ahead of everything already waiting.
// Used to merge a cross-channel message into the sender's ongoing
// conversation.
func (q *Queue) SendPriority(req *Request) {
	q.mu.Lock()
	q.items = append(q.items, nil)
	copy(q.items[1:], q.items)
	q.items[0] = req
	q.mu.Unlock()
	q.wake()
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Recv blocks until a request is available, then pops the front. The
// canonical shape is "lock, try pop, release and await, repeat": the buffer
// is always rechecked before waiting so a wake issued while nobody waited is
// never lost.
func (q *Queue) Recv(ctx context.Context) (*Request, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			req := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return req, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len reports how many requests are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
