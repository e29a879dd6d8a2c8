// Package discord is the outbound Discord REST surface: channel messages
// for worker callbacks, bot-ingress replies, and alert notifications.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://discord.com/api/v10"

// MaxMessageLen is Discord's per-message content limit in bytes.
const MaxMessageLen = 2000

// Client posts messages to Discord channels as a bot. Calls are paced by a
// client-side limiter so a burst of chunks does not trip Discord's
// per-route rate limits.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient returns a client authenticated as a bot. An empty baseURL picks
// the public Discord API.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
	}
}

// PostMessage sends one content payload to a channel. Non-2xx responses are
// returned as errors.
func (c *Client) PostMessage(ctx context.Context, channelID, content string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord post: HTTP %d", resp.StatusCode)
	}
	return nil
}

// SendMessage splits content into Discord-sized chunks and posts them in
// order. Per-chunk failures are logged and do not stop later chunks.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) {
	for _, chunk := range ChunkText(content, MaxMessageLen) {
		if err := c.PostMessage(ctx, channelID, chunk); err != nil {
			slog.Warn("discord message chunk failed",
				"channel_id", channelID,
				"error", err,
			)
		}
	}
}
