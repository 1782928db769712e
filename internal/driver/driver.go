// Package driver runs the bootstrap conversation: it manages the agent
// gateway subprocess and sends prompts through the openclaw CLI, turning
// each invocation into a terminal ConversationOutcome.
package driver

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/openclaw/clawbench/internal/workspace"
)

// Status is the terminal state of one driven conversation.
type Status int

const (
	StatusCompleted Status = iota
	StatusTimedOut
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusTimedOut:
		return "timed_out"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is immutable once produced. A timeout is a measurable result,
// not an error; Failed means the process never ran to completion
// (launch failure, crash, external cancellation).
type Outcome struct {
	Status     Status
	Transcript string
	Elapsed    time.Duration
	Err        string // failure detail, set only for StatusFailed
}

// Driver invokes the agent CLI. Bin is overridable so tests can substitute
// a stub executable.
type Driver struct {
	Bin string
}

func New() *Driver { return &Driver{} }

func (d *Driver) bin() string {
	if d.Bin != "" {
		return d.Bin
	}
	return "openclaw"
}

// Drive transmits exactly one message and waits for the agent process to
// terminate or for timeout to elapse, whichever comes first. Output
// capture is bounded by the same deadline: WaitDelay force-closes the
// pipes so a stalled stream cannot block past the timeout.
func (d *Driver) Drive(ctx context.Context, ws *workspace.Workspace, prompt string, timeout time.Duration) Outcome {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(dctx, d.bin(), "agent",
		"--agent", "main",
		"--message", prompt,
		"--local",
		"--json",
	)
	cmd.Env = ws.Env()
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)
	transcript := ExtractTranscript(stdout.Bytes())

	switch {
	case errors.Is(dctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return Outcome{Status: StatusTimedOut, Transcript: transcript, Elapsed: elapsed}
	case ctx.Err() != nil:
		return Outcome{Status: StatusFailed, Transcript: transcript, Elapsed: elapsed, Err: "cancelled"}
	case runErr != nil:
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = runErr.Error()
		}
		return Outcome{Status: StatusFailed, Transcript: transcript, Elapsed: elapsed, Err: detail}
	}
	return Outcome{Status: StatusCompleted, Transcript: transcript, Elapsed: elapsed}
}

// Version runs `openclaw --version`, falling back to "unknown". The
// report keys skip-completed decisions on this value, so it must never
// abort the run.
func (d *Driver) Version(ctx context.Context) string {
	vctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	out, err := exec.CommandContext(vctx, d.bin(), "--version").Output()
	if err != nil {
		log.Printf("warning: could not detect %s version: %v", d.bin(), err)
		return "unknown"
	}
	v := strings.TrimSpace(string(out))
	if v == "" {
		return "unknown"
	}
	return v
}
