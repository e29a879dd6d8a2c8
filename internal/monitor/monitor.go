// Package monitor renders the bridge's /api/status feed as a live
// terminal view: active requests colored by how long they have been
// running, plus the most recent completions.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/bridge-echo/internal/tracker"
)

const (
	reset = "\x1b[0m"
	bold  = "\x1b[1m"
	dim   = "\x1b[2m"

	blue   = "\x1b[38;5;75m"
	green  = "\x1b[38;5;78m"
	orange = "\x1b[38;5;208m"
	red    = "\x1b[38;5;203m"
	purple = "\x1b[38;5;141m"
	gray   = "\x1b[38;5;243m"

	clearScreen = "\x1b[2J\x1b[H"
)

// Elapsed-time cutoffs for coloring active requests, in seconds.
const (
	slowAfterSecs  = 300
	stuckAfterSecs = 600
)

// previewWidth caps rendered previews by display width, keeping wide
// glyphs from wrapping the line.
const previewWidth = 72

// completedShown caps the recent section at the newest entries.
const completedShown = 5

// status mirrors the gateway's /api/status document.
type status struct {
	Active    []tracker.ActiveSnapshot   `json:"active"`
	Completed []tracker.CompletedRequest `json:"completed"`
}

// Monitor polls the local bridge and renders its state.
type Monitor struct {
	url    string
	client *http.Client
	out    io.Writer
	errOut io.Writer
}

// New builds a monitor for the bridge listening on port of the local
// host. Renders go to out, protocol errors to errOut.
func New(port int, out, errOut io.Writer) *Monitor {
	return &Monitor{
		url:    fmt.Sprintf("http://127.0.0.1:%d/api/status", port),
		client: &http.Client{Timeout: 5 * time.Second},
		out:    out,
		errOut: errOut,
	}
}

// Run polls once per second until ctx is cancelled. With once set it
// renders a single frame and returns any poll error, for scripting.
func (m *Monitor) Run(ctx context.Context, once bool) error {
	for {
		if !once {
			fmt.Fprint(m.out, clearScreen)
		}

		err := m.poll(ctx)
		if once {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

// poll fetches and renders one frame. A connect failure renders the
// offline banner; non-success statuses and parse failures go to errOut.
func (m *Monitor) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		fmt.Fprintf(m.out, "%s%sbridge-echo%s\n\n", bold, blue, reset)
		fmt.Fprintf(m.out, "%s● offline%s %s— %v%s\n", red, reset, dim, err, reset)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		fmt.Fprintf(m.errOut, "server returned %s\n", resp.Status)
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var st status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		fmt.Fprintf(m.errOut, "failed to parse response: %v\n", err)
		return err
	}

	m.render(st)
	return nil
}

func (m *Monitor) render(st status) {
	fmt.Fprintf(m.out, "%s%sbridge-echo%s\n\n", bold, blue, reset)

	if len(st.Active) == 0 {
		fmt.Fprintf(m.out, "%s● idle%s\n", green, reset)
	}
	for _, req := range st.Active {
		color, label := green, "active"
		switch {
		case req.ElapsedSecs >= stuckAfterSecs:
			color, label = red, "stuck"
		case req.ElapsedSecs >= slowAfterSecs:
			color, label = orange, "active"
		}

		fmt.Fprintf(m.out, "%s● %s%s  %s%s%s  %s%s%s\n",
			color, label, reset,
			color, fmtDuration(req.ElapsedSecs), reset,
			purple, req.Channel, reset,
		)
		if req.MessagePreview != "" {
			fmt.Fprintf(m.out, "  %s%s%s\n", gray, clip(req.MessagePreview), reset)
		}
	}

	if len(st.Completed) == 0 {
		return
	}
	fmt.Fprintf(m.out, "\n%srecent%s\n", dim, reset)
	completed := st.Completed
	if len(completed) > completedShown {
		completed = completed[len(completed)-completedShown:]
	}
	for _, req := range completed {
		fmt.Fprintf(m.out, "  %s#%d%s  %s  %s%s%s  %s%s%s\n",
			gray, req.ID, reset,
			fmtDuration(req.DurationSecs),
			purple, req.Channel, reset,
			gray, clip(req.MessagePreview), reset,
		)
	}
}

// clip truncates by display width so wide glyphs don't overflow the
// line.
func clip(s string) string {
	return runewidth.Truncate(s, previewWidth, "…")
}

// fmtDuration renders seconds as "3m 05s" past the first minute.
func fmtDuration(secs int64) string {
	m := secs / 60
	s := secs % 60
	if m > 0 {
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
