// Package claude shells out to the Claude CLI and normalizes whatever comes
// back into a response the bridge can always deliver.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Response is the outcome of one invocation. Text is always non-empty;
// invocation failures are encoded into it rather than returned as errors.
type Response struct {
	Text      string
	SessionID string // "" when the invocation did not return one
}

// Invoker runs the Claude binary, one subprocess per call.
type Invoker struct {
	Bin  string
	Home string
}

// Invoke runs the assistant with prompt. A non-empty sessionID resumes that
// conversation; a non-empty selfDoc is appended to the system prompt. The
// subprocess inherits the environment with CLAUDE_CODE_ENTRYPOINT and HOME
// pinned, and runs in the home directory.
func (iv *Invoker) Invoke(ctx context.Context, prompt, sessionID, selfDoc string) Response {
	args := []string{
		"-p", prompt,
		"--output-format", "json",
		"--dangerously-skip-permissions",
	}
	if sessionID != "" {
		args = append(args, "-r", sessionID)
	}
	if selfDoc != "" {
		args = append(args, "--append-system-prompt", selfDoc)
	}

	cmd := exec.CommandContext(ctx, iv.Bin, args...)
	cmd.Env = append(os.Environ(),
		"CLAUDE_CODE_ENTRYPOINT=cli",
		"HOME="+iv.Home,
	)
	cmd.Dir = iv.Home

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			text := strings.TrimSpace(string(exitErr.Stderr))
			if text == "" {
				text = "Claude returned an error."
			}
			return Response{Text: text}
		}
		return Response{Text: fmt.Sprintf("Error running Claude: %v", err)}
	}
	return parseOutput(string(out))
}

type cliOutput struct {
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
}

// parseOutput reads the CLI's JSON envelope. Unparseable stdout falls back
// to the raw trimmed text with no session id, so garbled output still
// reaches the caller.
func parseOutput(stdout string) Response {
	var parsed cliOutput
	if err := json.Unmarshal([]byte(stdout), &parsed); err != nil {
		slog.Warn("failed to parse Claude JSON output", "error", err)
		text := strings.TrimSpace(stdout)
		if text == "" {
			text = "No response from Claude."
		}
		return Response{Text: text}
	}

	text := strings.TrimSpace(parsed.Result)
	if text == "" {
		text = "No response from Claude."
	}
	return Response{Text: text, SessionID: parsed.SessionID}
}
