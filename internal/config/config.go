// Package config loads and validates the benchmark configuration.
//
// String values support environment variable interpolation in the forms
// $VAR, ${VAR} and ${VAR:-default}. Unset variables without a default are
// left untouched, so dummy keys like "ollama" survive as-is. Prompt
// templates additionally support {user_name}-style field references that
// are resolved against bootstrap_fields at load time.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Models          []Model         `yaml:"models"`
	PromptVariants  []PromptVariant `yaml:"-"`
	BootstrapFields Fields          `yaml:"bootstrap_fields"`

	RunsPerModel      int `yaml:"runs_per_model"`
	Retries           int `yaml:"retries"`
	AgentTurnTimeoutS int `yaml:"agent_turn_timeout"`
	BootstrapTimeoutS int `yaml:"bootstrap_timeout"`

	Gateway   Gateway   `yaml:"gateway"`
	Workspace Workspace `yaml:"workspace"`
	Results   Results   `yaml:"results"`
}

type Model struct {
	Name          string `yaml:"name"`
	ModelID       string `yaml:"model_id"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	Compatibility string `yaml:"compatibility"`
	ContextWindow int    `yaml:"context_window"`
}

// PromptVariant is a named prompt style applied uniformly across trials.
type PromptVariant struct {
	Name    string
	Prompts []string
}

// Fields holds the values injected into prompt templates and expected by
// the post-bootstrap checks.
type Fields struct {
	UserName        string `yaml:"user_name"`
	UserTimezone    string `yaml:"user_timezone"`
	UserPreferences string `yaml:"user_preferences"`
	AgentName       string `yaml:"agent_name"`
	AgentCreature   string `yaml:"agent_creature"`
	AgentVibe       string `yaml:"agent_vibe"`
	AgentEmoji      string `yaml:"agent_emoji"`
}

type Gateway struct {
	Port         int    `yaml:"port"`
	Bind         string `yaml:"bind"`
	PortAttempts int    `yaml:"port_attempts"`
}

type Workspace struct {
	TemplatesDir string `yaml:"templates_dir"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.AgentTurnTimeoutS) * time.Second
}

func (c *Config) BootstrapTimeout() time.Duration {
	return time.Duration(c.BootstrapTimeoutS) * time.Second
}

// Matches $VAR, ${VAR} and ${VAR:-default}.
var envRe = regexp.MustCompile(
	`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandEnv replaces environment references in s. Unset variables without
// a :-default are left unchanged.
func ExpandEnv(s string) string {
	return envRe.ReplaceAllStringFunc(s, func(m string) string {
		groups := envRe.FindStringSubmatch(m)
		name := groups[1]
		if name == "" {
			name = groups[3]
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		if strings.HasPrefix(m, "${"+name+":-") {
			return groups[2]
		}
		return m
	})
}

// Interpolate resolves {field} references in a prompt template. Unknown
// references are left as-is.
func (f *Fields) Interpolate(prompt string) string {
	r := strings.NewReplacer(
		"{user_name}", f.UserName,
		"{user_timezone}", f.UserTimezone,
		"{user_preferences}", f.UserPreferences,
		"{agent_name}", f.AgentName,
		"{agent_creature}", f.AgentCreature,
		"{agent_vibe}", f.AgentVibe,
		"{agent_emoji}", f.AgentEmoji,
	)
	return r.Replace(prompt)
}

// rawConfig defers prompt_variants parsing: it is a YAML mapping whose key
// order is meaningful (variants run in config order), so it is decoded from
// the node rather than into a Go map.
type rawConfig struct {
	Config         `yaml:",inline"`
	PromptVariants yaml.Node `yaml:"prompt_variants"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg := raw.Config

	variants, err := parseVariants(&raw.PromptVariants)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.PromptVariants = variants

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	for i := range cfg.Models {
		cfg.Models[i].APIKey = ExpandEnv(cfg.Models[i].APIKey)
		cfg.Models[i].BaseURL = ExpandEnv(cfg.Models[i].BaseURL)
	}
	for vi := range cfg.PromptVariants {
		v := &cfg.PromptVariants[vi]
		for pi := range v.Prompts {
			v.Prompts[pi] = cfg.BootstrapFields.Interpolate(v.Prompts[pi])
		}
	}
	return &cfg, nil
}

func parseVariants(node *yaml.Node) ([]PromptVariant, error) {
	if node.Kind == 0 || node.IsZero() {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("prompt_variants must be a mapping of name to prompt list")
	}
	var variants []PromptVariant
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		val := node.Content[i+1]
		v := PromptVariant{Name: key.Value}
		switch val.Kind {
		case yaml.SequenceNode:
			if err := val.Decode(&v.Prompts); err != nil {
				return nil, fmt.Errorf("variant %q: %w", v.Name, err)
			}
		case yaml.ScalarNode:
			v.Prompts = []string{val.Value}
		default:
			return nil, fmt.Errorf("variant %q: expected string or list of strings", v.Name)
		}
		variants = append(variants, v)
	}
	return variants, nil
}

func validate(cfg *Config) error {
	if len(cfg.Models) == 0 {
		return fmt.Errorf("no models defined")
	}
	for i, m := range cfg.Models {
		if m.Name == "" {
			return fmt.Errorf("model %d: name is required", i)
		}
		if m.ModelID == "" {
			return fmt.Errorf("model %q: model_id is required", m.Name)
		}
		if m.BaseURL == "" {
			return fmt.Errorf("model %q: base_url is required", m.Name)
		}
		if m.Compatibility == "" {
			cfg.Models[i].Compatibility = "openai"
		}
	}
	if len(cfg.PromptVariants) == 0 {
		return fmt.Errorf("no prompt variants defined")
	}
	for _, v := range cfg.PromptVariants {
		if len(v.Prompts) == 0 {
			return fmt.Errorf("variant %q: at least one prompt is required", v.Name)
		}
	}
	if cfg.RunsPerModel < 1 {
		cfg.RunsPerModel = 5
	}
	if cfg.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	if cfg.AgentTurnTimeoutS < 1 {
		cfg.AgentTurnTimeoutS = 120
	}
	if cfg.BootstrapTimeoutS < 1 {
		cfg.BootstrapTimeoutS = 600
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18789
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.PortAttempts < 1 {
		cfg.Gateway.PortAttempts = 20
	}
	if cfg.Workspace.TemplatesDir == "" {
		cfg.Workspace.TemplatesDir = "templates"
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	def := DefaultFields()
	f := &cfg.BootstrapFields
	if f.UserName == "" {
		f.UserName = def.UserName
	}
	if f.UserTimezone == "" {
		f.UserTimezone = def.UserTimezone
	}
	if f.UserPreferences == "" {
		f.UserPreferences = def.UserPreferences
	}
	if f.AgentName == "" {
		f.AgentName = def.AgentName
	}
	if f.AgentCreature == "" {
		f.AgentCreature = def.AgentCreature
	}
	if f.AgentVibe == "" {
		f.AgentVibe = def.AgentVibe
	}
	if f.AgentEmoji == "" {
		f.AgentEmoji = def.AgentEmoji
	}
	return nil
}

// DefaultFields returns the values prompts and checks fall back to when
// bootstrap_fields is absent from the config.
func DefaultFields() Fields {
	return Fields{
		UserName:        "Alex",
		UserTimezone:    "Europe/Rome",
		UserPreferences: "concise answers, no filler, direct and helpful",
		AgentName:       "Coral",
		AgentCreature:   "space lobster",
		AgentVibe:       "warm and casual",
		AgentEmoji:      "\U0001F99E",
	}
}
