package driver

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/openclaw/clawbench/internal/workspace"
)

// Gateway is the agent's background gateway process, bound to one
// workspace's reserved port for the trial's lifetime.
type Gateway struct {
	Port    int
	cmd     *exec.Cmd
	logFile *os.File
}

func (g *Gateway) URL() string {
	return fmt.Sprintf("http://localhost:%d", g.Port)
}

// StartGateway launches `openclaw gateway` against the workspace config.
// The process is registered with the workspace so Teardown can kill it
// even if Stop is never reached.
func (d *Driver) StartGateway(ctx context.Context, ws *workspace.Workspace) (*Gateway, error) {
	logFile, err := os.Create(filepath.Join(ws.Home, "gateway.log"))
	if err != nil {
		return nil, fmt.Errorf("creating gateway log: %w", err)
	}

	cmd := exec.CommandContext(ctx, d.bin(), "gateway",
		"--port", fmt.Sprintf("%d", ws.Port),
		"--auth", "token",
		"--token", ws.Token,
	)
	cmd.Env = ws.Env()
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("starting gateway: %w", err)
	}
	ws.Track(cmd.Process)

	return &Gateway{Port: ws.Port, cmd: cmd, logFile: logFile}, nil
}

// WaitReady polls the gateway port until it accepts connections or the
// timeout expires. Polling is paced rather than busy-looped.
func (g *Gateway) WaitReady(ctx context.Context, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(500*time.Millisecond), 1)
	addr := fmt.Sprintf("localhost:%d", g.Port)
	for {
		if err := limiter.Wait(wctx); err != nil {
			if ctx.Err() != nil {
				// Operator cancellation, not a gateway problem.
				return fmt.Errorf("waiting for gateway on %s: %w", addr, ctx.Err())
			}
			return fmt.Errorf("gateway on %s not ready after %s", addr, timeout)
		}
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
	}
}

// Stop terminates the gateway, escalating from SIGTERM to SIGKILL.
func (g *Gateway) Stop() {
	if g.cmd != nil && g.cmd.Process != nil {
		g.cmd.Process.Signal(syscall.SIGTERM)
		done := make(chan struct{})
		go func() {
			g.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			g.cmd.Process.Kill()
			<-done
		}
	}
	if g.logFile != nil {
		g.logFile.Close()
	}
}
