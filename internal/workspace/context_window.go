package workspace

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/openclaw/clawbench/internal/config"
)

// ResolveContextWindow picks the context window written to the agent
// config. An explicit config value wins; otherwise local Ollama servers
// are asked for the real value; the result is clamped to the range the
// agent runtime accepts.
func ResolveContextWindow(m config.Model) int {
	ctx := m.ContextWindow
	if ctx == 0 {
		ctx = DefaultContextWindow
	}
	if m.ContextWindow == 0 || m.ContextWindow == DefaultContextWindow {
		if strings.Contains(m.BaseURL, "localhost") || strings.Contains(m.BaseURL, "127.0.0.1") {
			if discovered, ok := QueryOllamaContextWindow(m.BaseURL, m.ModelID); ok && discovered >= MinContextWindow {
				ctx = discovered
			}
		}
	}
	if ctx < MinContextWindow {
		ctx = MinContextWindow
	}
	if ctx > MaxContextWindow {
		ctx = MaxContextWindow
	}
	return ctx
}

// QueryOllamaContextWindow asks Ollama's native /api/show endpoint for the
// model's context length. baseURL is the OpenAI-compatible endpoint
// (http://host:11434/v1); the /v1 suffix is stripped to reach the native
// API. Returns false on any failure.
func QueryOllamaContextWindow(baseURL, modelID string) (int, bool) {
	root := strings.TrimRight(baseURL, "/")
	root = strings.TrimSuffix(root, "/v1")

	payload, _ := json.Marshal(map[string]string{"name": modelID})
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(root+"/api/show", "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode >= 400 {
		return 0, false
	}
	return ParseOllamaContextWindow(body, modelID)
}

// ParseOllamaContextWindow extracts the context length from an /api/show
// response. Ollama reports it as model_info.<arch>.context_length, with a
// "num_ctx" line in the parameters string as a fallback.
func ParseOllamaContextWindow(body []byte, modelID string) (int, bool) {
	found := 0
	gjson.GetBytes(body, "model_info").ForEach(func(key, value gjson.Result) bool {
		if strings.HasSuffix(key.String(), ".context_length") && value.Int() > 0 {
			found = int(value.Int())
			return false
		}
		return true
	})
	if found > 0 {
		log.Printf("ollama reports context_length=%d for %s", found, modelID)
		return found, true
	}

	for _, line := range strings.Split(gjson.GetBytes(body, "parameters").String(), "\n") {
		parts := strings.Fields(line)
		if len(parts) == 2 && parts[0] == "num_ctx" {
			if n, err := strconv.Atoi(parts[1]); err == nil && n > 0 {
				log.Printf("ollama reports num_ctx=%d for %s", n, modelID)
				return n, true
			}
		}
	}
	return 0, false
}
