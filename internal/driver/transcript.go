package driver

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractTranscript turns the agent CLI's --json event stream into plain
// conversation text. Each line is either a JSON event (assistant message
// chunks carry the text under message.content, content, or text) or raw
// noise from the model/CLI, which is kept verbatim. Malformed output is
// data here, not an error.
func ExtractTranscript(out []byte) string {
	var parts []string
	for _, line := range strings.Split(string(out), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !gjson.Valid(trimmed) {
			parts = append(parts, trimmed)
			continue
		}
		if text := eventText(trimmed); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func eventText(line string) string {
	for _, path := range []string{"message.content", "content", "text"} {
		if res := gjson.Get(line, path); res.Exists() && res.Type == gjson.String {
			return res.String()
		}
	}
	// Structured content blocks: message.content as an array of
	// {type:"text", text:"..."} objects.
	if blocks := gjson.Get(line, "message.content.#.text"); blocks.IsArray() {
		var texts []string
		for _, b := range blocks.Array() {
			if b.String() != "" {
				texts = append(texts, b.String())
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}
