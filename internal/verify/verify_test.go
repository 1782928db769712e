package verify_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openclaw/clawbench/internal/verify"
)

const identityTemplate = `# IDENTITY.md - Who Am I?

- **Name:**
  _(pick something you like)_
- **Creature:**
  _(AI? Robot? Familiar? Ghost in the machine? Something weirder?)_
- **Vibe:**
  _(How do you come across? Sharp? Warm? Chaotic? Calm?)_
- **Emoji:**
  _(your signature — pick one that feels right)_
`

const identityFilled = `# IDENTITY.md - Who Am I?

- **Name:** Coral
- **Creature:** space lobster
- **Vibe:** warm and casual
- **Emoji:** 🦞
`

const userTemplate = `# USER.md - About Your Human

- **Name:**
- **What to call them:** (optional)
- **Timezone:**
- **Notes:**
`

const userFilled = `# USER.md - About Your Human

- **Name:** Alex
- **What to call them:** Alex
- **Timezone:** Europe/Rome
- **Notes:** likes it concise
`

const soulTemplate = `# SOUL.md - Who You Are

_Fill this in during your first conversation._

You're not a chatbot. You're becoming someone.
`

// writeWorkspace builds a workspace dir plus a SOUL.md template to diff
// against, returning both paths.
func writeWorkspace(t *testing.T, files map[string]string) (dir, soulTemplatePath string) {
	t.Helper()
	dir = t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	soulTemplatePath = filepath.Join(t.TempDir(), "SOUL.md")
	if err := os.WriteFile(soulTemplatePath, []byte(soulTemplate), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, soulTemplatePath
}

func TestVerifyAllPass(t *testing.T) {
	dir, tpl := writeWorkspace(t, map[string]string{
		"IDENTITY.md": identityFilled,
		"USER.md":     userFilled,
		"SOUL.md":     "# SOUL.md\n\nI'm Coral. I keep answers short because Alex likes it that way.\n",
	})

	checks := verify.Verify(dir, tpl)
	for _, c := range checks {
		if !c.Passed {
			t.Errorf("%s failed: %s", c.Check, c.Detail)
		}
	}
}

func TestVerifyIdempotent(t *testing.T) {
	dir, tpl := writeWorkspace(t, map[string]string{
		"IDENTITY.md": identityFilled,
		"USER.md":     userFilled,
		"SOUL.md":     "personalised soul\n",
	})

	first := verify.Verify(dir, tpl)
	second := verify.Verify(dir, tpl)
	if first != second {
		t.Errorf("verification changed state between runs:\n%v\n%v", first, second)
	}
}

func TestBootstrapStillPresent(t *testing.T) {
	dir, tpl := writeWorkspace(t, map[string]string{
		"BOOTSTRAP.md": "# BOOTSTRAP.md\nstill here\n",
		"IDENTITY.md":  identityFilled,
		"USER.md":      userFilled,
		"SOUL.md":      "personalised\n",
	})

	checks := verify.Verify(dir, tpl)
	if checks[verify.BootstrapDeleted].Passed {
		t.Error("expected BootstrapDeleted to fail while the file exists")
	}
	if !checks[verify.IdentityPopulated].Passed {
		t.Error("other checks must not be affected")
	}
}

func TestIdentityTemplateRejected(t *testing.T) {
	dir, tpl := writeWorkspace(t, map[string]string{"IDENTITY.md": identityTemplate})

	checks := verify.Verify(dir, tpl)
	res := checks[verify.IdentityPopulated]
	if res.Passed {
		t.Fatal("expected untouched identity template to fail")
	}
	if !strings.Contains(res.Detail, "placeholder") {
		t.Errorf("expected placeholder detail, got %q", res.Detail)
	}
}

func TestIdentityPartiallyFilled(t *testing.T) {
	content := `# IDENTITY.md
- **Name:** Coral
- **Creature:** space lobster
- **Vibe:**
- **Emoji:** 🦞
`
	dir, tpl := writeWorkspace(t, map[string]string{"IDENTITY.md": content})

	res := verify.Verify(dir, tpl)[verify.IdentityPopulated]
	if res.Passed {
		t.Fatal("expected partially filled identity to fail")
	}
	if !strings.Contains(res.Detail, "vibe") {
		t.Errorf("expected vibe named in detail, got %q", res.Detail)
	}
}

func TestIdentityFileMissing(t *testing.T) {
	dir, tpl := writeWorkspace(t, map[string]string{})

	res := verify.Verify(dir, tpl)[verify.IdentityPopulated]
	if res.Passed || res.Detail != "file missing" {
		t.Errorf("expected file-missing failure, got %+v", res)
	}
}

func TestUserTemplateRejected(t *testing.T) {
	dir, tpl := writeWorkspace(t, map[string]string{"USER.md": userTemplate})

	res := verify.Verify(dir, tpl)[verify.UserPopulated]
	if res.Passed {
		t.Fatal("expected untouched user template to fail")
	}
}

func TestUserNameFallback(t *testing.T) {
	content := `# USER.md
- **Name:**
- **What to call them:** Alex
- **Timezone:** Europe/Rome
`
	dir, tpl := writeWorkspace(t, map[string]string{"USER.md": content})

	res := verify.Verify(dir, tpl)[verify.UserPopulated]
	if !res.Passed {
		t.Errorf("expected 'what to call them' to satisfy the name field: %s", res.Detail)
	}
}

func TestUserOptionalPlaceholderRejected(t *testing.T) {
	content := `# USER.md
- **Name:** (optional)
- **Timezone:** Europe/Rome
`
	dir, tpl := writeWorkspace(t, map[string]string{"USER.md": content})

	res := verify.Verify(dir, tpl)[verify.UserPopulated]
	if res.Passed {
		t.Error("expected (optional) to count as unfilled")
	}
}

func TestSoulUnchangedFails(t *testing.T) {
	dir, tpl := writeWorkspace(t, map[string]string{"SOUL.md": soulTemplate})

	res := verify.Verify(dir, tpl)[verify.SoulPersonalised]
	if res.Passed {
		t.Error("expected unchanged soul to fail")
	}
}

func TestSoulWhitespaceOnlyChangeFails(t *testing.T) {
	reflowed := strings.ReplaceAll(soulTemplate, "\n", "\n\n")
	dir, tpl := writeWorkspace(t, map[string]string{"SOUL.md": reflowed})

	res := verify.Verify(dir, tpl)[verify.SoulPersonalised]
	if res.Passed {
		t.Error("expected whitespace-only reflow to still count as unchanged")
	}
}

func TestSoulModifiedPasses(t *testing.T) {
	dir, tpl := writeWorkspace(t, map[string]string{
		"SOUL.md": soulTemplate + "\nI exist now. Alex and I decided I'm direct but kind.\n",
	})

	res := verify.Verify(dir, tpl)[verify.SoulPersonalised]
	if !res.Passed {
		t.Errorf("expected modified soul to pass: %s", res.Detail)
	}
}

func TestSoulMarkerFallback(t *testing.T) {
	// Template unavailable: short content carrying both template markers
	// fails, longer personalised content passes.
	dir := t.TempDir()
	missingTemplate := filepath.Join(dir, "no-such-template.md")

	short := "Fill this in during your first conversation. You're not a chatbot. You're becoming someone."
	if err := os.WriteFile(filepath.Join(dir, "SOUL.md"), []byte(short), 0o644); err != nil {
		t.Fatal(err)
	}
	if res := verify.Verify(dir, missingTemplate)[verify.SoulPersonalised]; res.Passed {
		t.Error("expected marker-only soul to fail without template")
	}

	long := short + "\n" + strings.Repeat("I have become someone real. ", 10)
	if err := os.WriteFile(filepath.Join(dir, "SOUL.md"), []byte(long), 0o644); err != nil {
		t.Fatal(err)
	}
	if res := verify.Verify(dir, missingTemplate)[verify.SoulPersonalised]; !res.Passed {
		t.Errorf("expected long personalised soul to pass: %s", res.Detail)
	}
}

func TestFailedAll(t *testing.T) {
	checks := verify.FailedAll("trial did not run")
	for i, c := range checks {
		if c.Passed {
			t.Errorf("check %d unexpectedly passed", i)
		}
		if c.Detail != "trial did not run" {
			t.Errorf("check %d detail = %q", i, c.Detail)
		}
		if c.Check != verify.Check(i) {
			t.Errorf("check %d mislabeled as %v", i, c.Check)
		}
	}
}

func TestCheckFileNames(t *testing.T) {
	tests := []struct {
		check verify.Check
		file  string
	}{
		{verify.BootstrapDeleted, "BOOTSTRAP.md"},
		{verify.IdentityPopulated, "IDENTITY.md"},
		{verify.UserPopulated, "USER.md"},
		{verify.SoulPersonalised, "SOUL.md"},
	}
	for _, tt := range tests {
		if got := tt.check.File(); got != tt.file {
			t.Errorf("%v.File() = %q, want %q", tt.check, got, tt.file)
		}
	}
}

func TestParseFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
		want    string
	}{
		{"bold inline", "- **Name:** Coral", "name", "Coral"},
		{"plain inline", "- Name: Coral", "name", "Coral"},
		{"star bullet", "* **Vibe:** sharp", "vibe", "sharp"},
		{"continuation line", "- **Name:**\n  _(pick something you like)_", "name", "pick something you like"},
		{"empty value no continuation", "- **Name:**\n- **Creature:** crab", "name", ""},
		{"markers stripped", "- **Emoji:** _🦞_", "emoji", "🦞"},
		{"multiword key", "- **What to call them:** Al", "what to call them", "Al"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := verify.ParseFields(tt.content)
			if got := fields[tt.key]; got != tt.want {
				t.Errorf("ParseFields()[%q] = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}
