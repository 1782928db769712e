package preflight

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/openclaw/clawbench/internal/config"
)

// WarmUp sends a tiny completion so the server loads the model weights
// before the first trial. Without it the first run pays the cold-start
// cost and times out on slow hardware.
func WarmUp(ctx context.Context, m config.Model) error {
	url := strings.TrimRight(m.BaseURL, "/") + "/chat/completions"
	payload := fmt.Sprintf(
		`{"model":%q,"messages":[{"role":"user","content":"Hi"}],"max_tokens":4}`, m.ModelID)

	wctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(wctx, http.MethodPost, url, bytes.NewReader([]byte(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.APIKey)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("warm-up request for %q: %w", m.ModelID, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("warm-up response for %q: %w", m.ModelID, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("warm-up for %q: HTTP %d", m.ModelID, resp.StatusCode)
	}
	if !gjson.GetBytes(body, "choices").Exists() {
		return fmt.Errorf("warm-up for %q: response has no choices", m.ModelID)
	}
	return nil
}
