// Package verify inspects a workspace after the bootstrap conversation
// reaches a terminal state and scores it against four independent checks.
// Checks are pure functions of the final filesystem state: a missing file
// is a failed check and malformed content is a failed check, never an error.
package verify

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Check identifies one of the four bootstrap criteria. The set is closed:
// adding a check means extending this enum, not inventing a new map key.
type Check int

const (
	BootstrapDeleted Check = iota
	IdentityPopulated
	UserPopulated
	SoulPersonalised

	NumChecks = 4
)

func (c Check) String() string {
	switch c {
	case BootstrapDeleted:
		return "BootstrapDeleted"
	case IdentityPopulated:
		return "IdentityPopulated"
	case UserPopulated:
		return "UserPopulated"
	case SoulPersonalised:
		return "SoulPersonalised"
	default:
		return "unknown"
	}
}

// File returns the workspace file the check inspects. Reports key
// per-check rates on these names.
func (c Check) File() string {
	switch c {
	case BootstrapDeleted:
		return "BOOTSTRAP.md"
	case IdentityPopulated:
		return "IDENTITY.md"
	case UserPopulated:
		return "USER.md"
	case SoulPersonalised:
		return "SOUL.md"
	default:
		return ""
	}
}

type CheckResult struct {
	Check  Check
	Passed bool
	Detail string
}

// Placeholder values shipped in the workspace templates. A field equal to
// one of these (case-insensitive, markers stripped) counts as unfilled.
var identityPlaceholders = map[string]bool{
	"pick something you like":                                         true,
	"ai? robot? familiar? ghost in the machine? something weirder?":   true,
	"how do you come across? sharp? warm? chaotic? calm?":             true,
	"your signature — pick one that feels right":                      true,
	"your signature - pick one that feels right":                      true,
	"workspace-relative path, http(s) url, or data uri":               true,
}

var userPlaceholders = map[string]bool{
	"":           true,
	"(optional)": true,
	"optional":   true,
}

var identityRequired = []string{"name", "creature", "vibe", "emoji"}
var userRequired = []string{"name", "timezone"}

// Markers present only in the untouched SOUL.md template; used as a
// fallback when the template file itself is unavailable for comparison.
var soulTemplateMarkers = []string{
	"Fill this in during your first conversation",
	"You're not a chatbot. You're becoming someone.",
}

// Verify runs all four checks against the workspace directory.
// soulTemplatePath points at the shipped SOUL.md template used for the
// personalisation diff. Idempotent over an unchanged workspace.
func Verify(workspaceDir, soulTemplatePath string) [NumChecks]CheckResult {
	return [NumChecks]CheckResult{
		checkBootstrapDeleted(workspaceDir),
		checkIdentity(workspaceDir),
		checkUser(workspaceDir),
		checkSoul(workspaceDir, soulTemplatePath),
	}
}

// FailedAll returns four failed-by-definition results, used when the
// conversation never reached a terminal scoreable state.
func FailedAll(detail string) [NumChecks]CheckResult {
	var out [NumChecks]CheckResult
	for i := range out {
		out[i] = CheckResult{Check: Check(i), Detail: detail}
	}
	return out
}

func checkBootstrapDeleted(dir string) CheckResult {
	res := CheckResult{Check: BootstrapDeleted}
	if _, err := os.Stat(filepath.Join(dir, BootstrapDeleted.File())); os.IsNotExist(err) {
		res.Passed = true
		res.Detail = "deleted"
	} else {
		res.Detail = "still exists, bootstrap did not complete"
	}
	return res
}

func checkIdentity(dir string) CheckResult {
	res := CheckResult{Check: IdentityPopulated}
	content, err := os.ReadFile(filepath.Join(dir, IdentityPopulated.File()))
	if err != nil {
		res.Detail = "file missing"
		return res
	}
	fields := ParseFields(string(content))

	var missing, placeholder []string
	for _, req := range identityRequired {
		val := fields[req]
		switch {
		case val == "":
			missing = append(missing, req)
		case isPlaceholder(val):
			placeholder = append(placeholder, req)
		}
	}
	switch {
	case len(missing) > 0:
		res.Detail = "missing fields: " + strings.Join(missing, ", ")
	case len(placeholder) > 0:
		res.Detail = "placeholder values: " + strings.Join(placeholder, ", ")
	default:
		res.Passed = true
		var parts []string
		for _, req := range identityRequired {
			parts = append(parts, req+"="+fields[req])
		}
		res.Detail = "all fields set: " + strings.Join(parts, ", ")
	}
	return res
}

func checkUser(dir string) CheckResult {
	res := CheckResult{Check: UserPopulated}
	content, err := os.ReadFile(filepath.Join(dir, UserPopulated.File()))
	if err != nil {
		res.Detail = "file missing"
		return res
	}
	fields := ParseFields(string(content))

	lookup := func(req string) string {
		val := fields[req]
		if req == "name" && val == "" {
			// Templates sometimes label this "what to call them".
			val = fields["what to call them"]
		}
		return val
	}

	var missing, placeholder []string
	for _, req := range userRequired {
		val := lookup(req)
		switch {
		case val == "":
			missing = append(missing, req)
		case isPlaceholder(val):
			placeholder = append(placeholder, req)
		}
	}
	switch {
	case len(missing) > 0:
		res.Detail = "missing fields: " + strings.Join(missing, ", ")
	case len(placeholder) > 0:
		res.Detail = "placeholder values: " + strings.Join(placeholder, ", ")
	default:
		res.Passed = true
		var parts []string
		for _, req := range userRequired {
			parts = append(parts, req+"="+lookup(req))
		}
		res.Detail = "key fields populated: " + strings.Join(parts, ", ")
	}
	return res
}

func checkSoul(dir, templatePath string) CheckResult {
	res := CheckResult{Check: SoulPersonalised}
	content, err := os.ReadFile(filepath.Join(dir, SoulPersonalised.File()))
	if err != nil {
		res.Detail = "file missing"
		return res
	}

	if template, err := os.ReadFile(templatePath); err == nil {
		if normalizeWhitespace(string(content)) == normalizeWhitespace(string(template)) {
			res.Detail = "unchanged from template"
			return res
		}
		res.Passed = true
		res.Detail = "modified from template"
		return res
	}

	// No template to diff against: fall back to marker heuristics.
	templateOnly := true
	for _, marker := range soulTemplateMarkers {
		if !strings.Contains(string(content), marker) {
			templateOnly = false
			break
		}
	}
	if templateOnly && len(strings.TrimSpace(string(content))) <= 200 {
		res.Detail = "still contains only template text"
		return res
	}
	res.Passed = true
	res.Detail = "modified"
	return res
}

var wsRe = regexp.MustCompile(`\s+`)

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// Matches "- **Name:** Coral", "- Name: Coral", "* **Name:** Coral".
var fieldRe = regexp.MustCompile(`^[-*]\s*\*{0,2}(\w[\w\s]*?)\*{0,2}\s*:\s*(.*)$`)

var markerRe = regexp.MustCompile(`^[*_\s]+|[*_\s]+$`)

func stripMarkers(s string) string {
	return markerRe.ReplaceAllString(s, "")
}

// ParseFields extracts "- **Key:** Value" style fields from markdown,
// lowercasing keys. Templates put placeholders on a continuation line
// ("- **Name:**\n  _(pick something you like)_"), so an empty value falls
// through to the next non-list line.
func ParseFields(content string) map[string]string {
	fields := map[string]string{}
	lines := strings.Split(content, "\n")
	for i, raw := range lines {
		m := fieldRe.FindStringSubmatch(strings.TrimSpace(raw))
		if m == nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(m[1]))
		val := stripParens(stripMarkers(m[2]))
		if val == "" && i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			if next != "" && !strings.HasPrefix(next, "-") && !strings.HasPrefix(next, "*") {
				val = stripParens(stripMarkers(next))
			}
		}
		fields[key] = val
	}
	return fields
}

func stripParens(s string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "("), ")"))
}

func isPlaceholder(value string) bool {
	normalized := strings.ToLower(strings.TrimSpace(stripMarkers(value)))
	return normalized == "" || identityPlaceholders[normalized] || userPlaceholders[normalized]
}
