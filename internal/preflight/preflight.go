// Package preflight validates external prerequisites before any trial
// spends time: toolchain versions, port availability, model server
// reachability and model presence. A failed gate aborts the run before a
// single workspace is provisioned.
package preflight

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/openclaw/clawbench/internal/config"
)

type CheckResult struct {
	Name    string
	Passed  bool
	Message string
	FixHint string
}

type Report struct {
	Checks []CheckResult
}

func (r *Report) AllPassed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

func (r *Report) Failed() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// Run executes every check. Model servers sharing a base URL are probed
// once; model presence is checked per model.
func Run(ctx context.Context, cfg *config.Config) *Report {
	rep := &Report{}
	rep.Checks = append(rep.Checks, CheckNode(ctx))
	rep.Checks = append(rep.Checks, CheckNpm(ctx))
	rep.Checks = append(rep.Checks, CheckAgentCLI())
	rep.Checks = append(rep.Checks, CheckPort(cfg.Gateway.Port))

	seen := map[string]bool{}
	for _, m := range cfg.Models {
		if !seen[m.BaseURL] {
			rep.Checks = append(rep.Checks, CheckModelServer(m))
			seen[m.BaseURL] = true
		}
		rep.Checks = append(rep.Checks, CheckModelAvailable(m))
	}
	return rep
}

var nodeMajorRe = regexp.MustCompile(`v?(\d+)`)

// CheckNode requires Node.js 22 or newer: the agent CLI is an npm package.
func CheckNode(ctx context.Context) CheckResult {
	out, err := exec.CommandContext(ctx, "node", "--version").Output()
	if err != nil {
		return CheckResult{
			Name:    "Node.js",
			Message: "node not found",
			FixHint: "Install Node.js >= 22: https://nodejs.org/",
		}
	}
	version := strings.TrimSpace(string(out))
	m := nodeMajorRe.FindStringSubmatch(version)
	if m == nil {
		return CheckResult{
			Name:    "Node.js",
			Message: fmt.Sprintf("could not parse version from %q", version),
			FixHint: "Install Node.js >= 22",
		}
	}
	major, _ := strconv.Atoi(m[1])
	if major < 22 {
		return CheckResult{
			Name:    "Node.js",
			Message: fmt.Sprintf("found %s, need >= 22", version),
			FixHint: "Upgrade Node.js: `nvm install 22`",
		}
	}
	return CheckResult{Name: "Node.js", Passed: true, Message: version}
}

func CheckNpm(ctx context.Context) CheckResult {
	out, err := exec.CommandContext(ctx, "npm", "--version").Output()
	if err != nil {
		return CheckResult{
			Name:    "npm",
			Message: "npm not found",
			FixHint: "npm ships with Node.js; reinstall Node",
		}
	}
	return CheckResult{Name: "npm", Passed: true, Message: "v" + strings.TrimSpace(string(out))}
}

// CheckAgentCLI verifies the openclaw binary is on PATH. Installing it is
// out of scope for the benchmark; it only gates on presence.
func CheckAgentCLI() CheckResult {
	path, err := exec.LookPath("openclaw")
	if err != nil {
		return CheckResult{
			Name:    "openclaw",
			Message: "openclaw not found on PATH",
			FixHint: "Install it: `npm install -g openclaw@latest`",
		}
	}
	return CheckResult{Name: "openclaw", Passed: true, Message: path}
}

// CheckPort requires the gateway base port to be free.
func CheckPort(port int) CheckResult {
	name := fmt.Sprintf("Port %d", port)
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	if err == nil {
		conn.Close()
		return CheckResult{
			Name:    name,
			Message: "already in use",
			FixHint: fmt.Sprintf("Free the port (`lsof -ti:%d | xargs kill`) or change gateway.port", port),
		}
	}
	return CheckResult{Name: name, Passed: true, Message: "available"}
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func CheckModelServer(m config.Model) CheckResult {
	name := fmt.Sprintf("Server [%s]", m.Name)
	base := strings.TrimRight(m.BaseURL, "/")
	for _, probe := range []string{base + "/models", base} {
		req, err := http.NewRequest(http.MethodGet, probe, nil)
		if err != nil {
			continue
		}
		if m.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+m.APIKey)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 400 {
			return CheckResult{Name: name, Passed: true, Message: "reachable at " + probe}
		}
	}
	return CheckResult{
		Name:    name,
		Message: "cannot reach " + base,
		FixHint: fmt.Sprintf("Start the model server (e.g. `ollama serve`) on %s", base),
	}
}

// CheckModelAvailable lists the server's models and looks for the
// configured id, tolerating Ollama tag conventions (name:tag, :latest).
func CheckModelAvailable(m config.Model) CheckResult {
	name := fmt.Sprintf("Model [%s]", m.Name)
	url := strings.TrimRight(m.BaseURL, "/") + "/models"

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return CheckResult{Name: name, Message: err.Error()}
	}
	if m.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.APIKey)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return CheckResult{
			Name:    name,
			Message: "could not list models from " + url,
			FixHint: "Ensure the server is running at " + m.BaseURL,
		}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode >= 400 {
		return CheckResult{
			Name:    name,
			Message: "could not list models from " + url,
			FixHint: "Ensure the server is running at " + m.BaseURL,
		}
	}

	ids := ModelIDs(body)
	if modelListed(ids, m.ModelID) {
		return CheckResult{Name: name, Passed: true, Message: fmt.Sprintf("%q available", m.ModelID)}
	}
	return CheckResult{
		Name:    name,
		Message: fmt.Sprintf("%q not found on server", m.ModelID),
		FixHint: fmt.Sprintf("Pull the model first: `ollama pull %s`", m.ModelID),
	}
}

// ModelIDs extracts model ids from an OpenAI-compatible listing
// ({"data":[{"id":...}]}) or Ollama's native form
// ({"models":[{"name":...}]}). Tagged names are indexed with and without
// the tag.
func ModelIDs(body []byte) map[string]bool {
	ids := map[string]bool{}
	add := func(id string) {
		if id == "" {
			return
		}
		ids[id] = true
		if i := strings.IndexByte(id, ':'); i > 0 {
			ids[id[:i]] = true
		}
	}
	for _, entry := range gjson.GetBytes(body, "data.#.id").Array() {
		add(entry.String())
	}
	for _, entry := range gjson.GetBytes(body, "models").Array() {
		add(entry.Get("model").String())
		add(entry.Get("name").String())
	}
	return ids
}

func modelListed(ids map[string]bool, wanted string) bool {
	if ids[wanted] {
		return true
	}
	if i := strings.IndexByte(wanted, ':'); i > 0 && ids[wanted[:i]] {
		return true
	}
	return ids[wanted+":latest"]
}
