// Package tracker keeps the in-memory operational record of bridge requests:
// everything currently in flight plus the most recent completions.
package tracker

import (
	"sync"
	"time"
	"unicode/utf8"
)

// maxCompleted bounds the completed history; oldest entries are evicted.
const maxCompleted = 50

// previewLimit is the byte budget for stored message and response previews.
const previewLimit = 80

type activeRequest struct {
	id             uint64
	channel        string
	sender         string
	messagePreview string
	startedAt      time.Time
	startedUnix    int64
	alertsSent     []int // threshold minutes already reported
}

// ActiveSnapshot is a point-in-time copy of one in-flight request.
type ActiveSnapshot struct {
	ID             uint64 `json:"id"`
	Channel        string `json:"channel"`
	Sender         string `json:"sender"`
	MessagePreview string `json:"message_preview"`
	StartedUnix    int64  `json:"started_unix"`
	ElapsedSecs    int64  `json:"elapsed_secs"`
}

// CompletedRequest records one finished request.
type CompletedRequest struct {
	ID              uint64 `json:"id"`
	Channel         string `json:"channel"`
	MessagePreview  string `json:"message_preview"`
	ResponsePreview string `json:"response_preview"`
	StartedUnix     int64  `json:"started_unix"`
	CompletedUnix   int64  `json:"completed_unix"`
	DurationSecs    int64  `json:"duration_secs"`
}

// AlertView is the alert loop's read of one in-flight request.
type AlertView struct {
	ID             uint64
	Channel        string
	MessagePreview string
	ElapsedSecs    int64
	AlertsSent     []int
}

// Tracker is safe for concurrent use: mutations take the exclusive lock,
// snapshots the shared one.
type Tracker struct {
	mu        sync.RWMutex
	nextID    uint64
	active    []activeRequest
	completed []CompletedRequest
}

func New() *Tracker {
	return &Tracker{}
}

// Start records a new in-flight request and returns its id. Ids increase
// monotonically and are never reused within a process lifetime.
func (t *Tracker) Start(channel, sender, message string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++

	now := time.Now()
	t.active = append(t.active, activeRequest{
		id:             id,
		channel:        channel,
		sender:         sender,
		messagePreview: Preview(message, previewLimit),
		startedAt:      now,
		startedUnix:    now.Unix(),
	})
	return id
}

// Complete moves an in-flight request into the completed history. Unknown
// ids are a no-op. Removal from active and the append to completed happen in
// one critical section so observers never see a request in both lists.
func (t *Tracker) Complete(id uint64, response string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos := -1
	for i := range t.active {
		if t.active[i].id == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return
	}
	req := t.active[pos]
	t.active = append(t.active[:pos], t.active[pos+1:]...)

	now := time.Now()
	t.completed = append(t.completed, CompletedRequest{
		ID:              req.id,
		Channel:         req.channel,
		MessagePreview:  req.messagePreview,
		ResponsePreview: Preview(response, previewLimit),
		StartedUnix:     req.startedUnix,
		CompletedUnix:   now.Unix(),
		DurationSecs:    int64(now.Sub(req.startedAt).Seconds()),
	})
	if n := len(t.completed) - maxCompleted; n > 0 {
		t.completed = append([]CompletedRequest(nil), t.completed[n:]...)
	}
}

// ActiveSnapshots returns copies of the in-flight requests with elapsed
// times recomputed at call time.
func (t *Tracker) ActiveSnapshots() []ActiveSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ActiveSnapshot, 0, len(t.active))
	for i := range t.active {
		r := &t.active[i]
		out = append(out, ActiveSnapshot{
			ID:             r.id,
			Channel:        r.channel,
			Sender:         r.sender,
			MessagePreview: r.messagePreview,
			StartedUnix:    r.startedUnix,
			ElapsedSecs:    int64(time.Since(r.startedAt).Seconds()),
		})
	}
	return out
}

// CompletedSnapshots returns a copy of the completed history, oldest first.
func (t *Tracker) CompletedSnapshots() []CompletedRequest {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]CompletedRequest, len(t.completed))
	copy(out, t.completed)
	return out
}

// MarkAlerted records that thresholdMin was reported for id. Idempotent;
// unknown ids are ignored.
func (t *Tracker) MarkAlerted(id uint64, thresholdMin int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.active {
		if t.active[i].id != id {
			continue
		}
		for _, m := range t.active[i].alertsSent {
			if m == thresholdMin {
				return
			}
		}
		t.active[i].alertsSent = append(t.active[i].alertsSent, thresholdMin)
		return
	}
}

// ActiveForAlerting returns the alert loop's sweep view of in-flight
// requests, with elapsed times recomputed and alert history copied.
func (t *Tracker) ActiveForAlerting() []AlertView {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]AlertView, 0, len(t.active))
	for i := range t.active {
		r := &t.active[i]
		sent := make([]int, len(r.alertsSent))
		copy(sent, r.alertsSent)
		out = append(out, AlertView{
			ID:             r.id,
			Channel:        r.channel,
			MessagePreview: r.messagePreview,
			ElapsedSecs:    int64(time.Since(r.startedAt).Seconds()),
			AlertsSent:     sent,
		})
	}
	return out
}

// HasActiveOnOtherChannel reports whether sender has an in-flight request on
// a channel other than channel. Drives cross-channel priority enqueue.
func (t *Tracker) HasActiveOnOtherChannel(sender, channel string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.active {
		if t.active[i].sender == sender && t.active[i].channel != channel {
			return true
		}
	}
	return false
}

// Preview truncates s to at most limit bytes without splitting a character,
// appending "..." when anything was cut.
func Preview(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:floorCharBoundary(s, limit)] + "..."
}

// floorCharBoundary returns the largest byte index <= n that does not split
// a UTF-8 sequence in s.
func floorCharBoundary(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
