// Package workspace provisions the isolated per-trial agent environment:
// a disposable OPENCLAW_HOME containing the seeded workspace files, an
// agent config scoped to that directory, and a reserved gateway port.
package workspace

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/openclaw/clawbench/internal/config"
)

// Context window bounds accepted by the OpenClaw agent runtime. Values
// outside this range trigger failover errors, so discovered or configured
// values are clamped before being written to the agent config.
const (
	MinContextWindow     = 16000
	MaxContextWindow     = 128000
	DefaultContextWindow = 128000
)

type Opts struct {
	Model        config.Model
	TemplatesDir string
	PortBase     int
	PortAttempts int
	Bind         string
	// Keep disables Teardown so the directory can be inspected after the
	// trial. Debug escape hatch only.
	Keep bool
}

// Workspace is one trial's private agent home. Owned by a single trial
// runner; never shared.
type Workspace struct {
	Home       string // isolated OPENCLAW_HOME
	Dir        string // agent workspace (the files under test)
	ConfigPath string
	Port       int
	Token      string
	Model      config.Model
	keep       bool

	mu       sync.Mutex
	procs    []*os.Process
	torndown bool
}

// Provision creates the isolated home, seeds the workspace templates,
// reserves a gateway port and writes the agent config.
func Provision(opts Opts) (*Workspace, error) {
	home, err := os.MkdirTemp("", "clawbench_"+sanitizeName(opts.Model.Name)+"_")
	if err != nil {
		return nil, fmt.Errorf("creating workspace home: %w", err)
	}
	ws := &Workspace{
		Home:       home,
		Dir:        filepath.Join(home, "workspace"),
		ConfigPath: filepath.Join(home, "openclaw.json"),
		Token:      uuid.NewString(),
		Model:      opts.Model,
		keep:       opts.Keep,
	}

	// Owner-only: the home holds the API key and gateway token.
	if err := os.Chmod(home, 0o700); err != nil {
		log.Printf("warning: chmod %s: %v", home, err)
	}

	if err := seedTemplates(opts.TemplatesDir, ws.Dir); err != nil {
		ws.Teardown()
		return nil, err
	}

	port, err := ReservePort(opts.PortBase, opts.PortAttempts)
	if err != nil {
		ws.Teardown()
		return nil, err
	}
	ws.Port = port

	if err := ws.writeAgentConfig(opts.Bind); err != nil {
		ws.Teardown()
		return nil, err
	}
	return ws, nil
}

// Env returns the process environment for subprocesses bound to this
// workspace. Color and interactive prompts are disabled for clean parsing.
func (w *Workspace) Env() []string {
	env := append(os.Environ(),
		"OPENCLAW_HOME="+w.Home,
		"OPENCLAW_CONFIG_PATH="+w.ConfigPath,
		"OPENCLAW_GATEWAY_TOKEN="+w.Token,
		"NO_COLOR=1",
		"CI=1",
	)
	if w.Model.APIKey != "" {
		env = append(env, "CUSTOM_API_KEY="+w.Model.APIKey)
	}
	return env
}

// Track registers a process to be killed on Teardown.
func (w *Workspace) Track(p *os.Process) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.procs = append(w.procs, p)
}

// Teardown kills tracked processes and removes the home directory.
// Best-effort and idempotent: it is called on every exit path, including
// after a prior failure, and must never panic. When the workspace was
// provisioned with Keep, the directory is retained.
func (w *Workspace) Teardown() {
	w.mu.Lock()
	procs := w.procs
	w.procs = nil
	done := w.torndown
	w.torndown = true
	w.mu.Unlock()

	for _, p := range procs {
		if err := p.Kill(); err != nil && !strings.Contains(err.Error(), "already finished") {
			log.Printf("warning: killing pid %d: %v", p.Pid, err)
		}
	}
	if done {
		return
	}
	if w.keep {
		log.Printf("keeping workspace at %s", w.Home)
		return
	}
	if err := os.RemoveAll(w.Home); err != nil {
		log.Printf("warning: removing %s: %v", w.Home, err)
	}
}

func sanitizeName(name string) string {
	// Colons (Ollama tags) and slashes are hostile in paths.
	return strings.NewReplacer(":", "_", "/", "_").Replace(name)
}

func seedTemplates(templatesDir, dst string) error {
	if err := os.MkdirAll(dst, 0o700); err != nil {
		return fmt.Errorf("creating workspace dir: %w", err)
	}
	entries, err := os.ReadDir(templatesDir)
	if err != nil {
		return fmt.Errorf("reading templates dir %s: %w", templatesDir, err)
	}
	seeded := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(templatesDir, e.Name()))
		if err != nil {
			return fmt.Errorf("reading template %s: %w", e.Name(), err)
		}
		if err := os.WriteFile(filepath.Join(dst, e.Name()), data, 0o644); err != nil {
			return fmt.Errorf("seeding %s: %w", e.Name(), err)
		}
		seeded++
	}
	if seeded == 0 {
		return fmt.Errorf("templates dir %s contains no files", templatesDir)
	}
	return nil
}

// agentConfig mirrors the subset of openclaw.json the benchmark controls.
type agentConfig struct {
	Gateway struct {
		Port int    `json:"port"`
		Bind string `json:"bind"`
		Auth struct {
			Mode  string `json:"mode"`
			Token string `json:"token"`
		} `json:"auth"`
	} `json:"gateway"`
	Models struct {
		Providers map[string]provider `json:"providers"`
	} `json:"models"`
	Agents struct {
		Defaults struct {
			Model struct {
				Primary string `json:"primary"`
			} `json:"model"`
		} `json:"defaults"`
	} `json:"agents"`
	Workspace string `json:"workspace"`
}

type provider struct {
	BaseURL       string       `json:"baseUrl"`
	APIKey        string       `json:"apiKey"`
	Compatibility string       `json:"compatibility"`
	Models        []modelEntry `json:"models"`
}

type modelEntry struct {
	ID            string `json:"id"`
	ContextWindow int    `json:"contextWindow"`
	MaxTokens     int    `json:"maxTokens"`
}

func (w *Workspace) writeAgentConfig(bind string) error {
	var cfg agentConfig
	cfg.Gateway.Port = w.Port
	cfg.Gateway.Bind = bind
	cfg.Gateway.Auth.Mode = "token"
	cfg.Gateway.Auth.Token = w.Token

	apiKey := w.Model.APIKey
	if apiKey == "" {
		// Placeholder: some OpenAI-compatible servers reject empty keys.
		apiKey = "clawbench-placeholder"
	}
	cfg.Models.Providers = map[string]provider{
		"custom": {
			BaseURL:       w.Model.BaseURL,
			APIKey:        apiKey,
			Compatibility: w.Model.Compatibility,
			Models: []modelEntry{{
				ID:            w.Model.ModelID,
				ContextWindow: ResolveContextWindow(w.Model),
				MaxTokens:     8192,
			}},
		},
	}
	cfg.Agents.Defaults.Model.Primary = "custom/" + w.Model.ModelID
	cfg.Workspace = w.Dir

	data, err := json.MarshalIndent(&cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling agent config: %w", err)
	}
	// 0600: the file carries the API key and gateway token.
	if err := os.WriteFile(w.ConfigPath, data, 0o600); err != nil {
		return fmt.Errorf("writing agent config: %w", err)
	}
	return nil
}
