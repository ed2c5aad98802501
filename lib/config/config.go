// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sudden-network/workflow-agent/lib/netutil"
)

// Store backends.
const (
	BackendGitHub = "github"
	BackendS3     = "s3"
	BackendDir    = "dir"
)

// Log formats. FormatAuto picks text on a terminal and JSON otherwise.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the complete workflow-agent configuration.
type Config struct {
	GitHub  GitHubConfig  `yaml:"github"`
	Agent   AgentConfig   `yaml:"agent"`
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Access  AccessConfig  `yaml:"access"`
	Log     LogConfig     `yaml:"log"`
}

// GitHubConfig configures the repository API client.
type GitHubConfig struct {
	// APIURL is the REST API root. Default: https://api.github.com
	APIURL string `yaml:"api_url"`

	// Token is the privileged repository token. Only the host process
	// and the bridge use it; the agent never sees it.
	Token string `yaml:"token"`

	// TokenActor is the login GitHub attributes Token's actions to. It
	// may be omitted when Token is the workflow token.
	TokenActor string `yaml:"token_actor"`

	// WorkflowToken is the job's own GITHUB_TOKEN. It is never read from
	// a file.
	WorkflowToken string `yaml:"-"`
}

// WorkflowTokenActor is the login behind a workflow's GITHUB_TOKEN.
const WorkflowTokenActor = "github-actions[bot]"

// ResolveTokenActor returns the login the repository token acts as.
func (c *Config) ResolveTokenActor() (string, error) {
	if c.GitHub.TokenActor != "" {
		return c.GitHub.TokenActor, nil
	}
	if c.GitHub.WorkflowToken != "" && c.GitHub.Token == c.GitHub.WorkflowToken {
		return WorkflowTokenActor, nil
	}
	return "", errors.New("missing github_token_actor input for non-workflow GitHub tokens")
}

// AgentConfig configures the agent subprocess.
type AgentConfig struct {
	// Binary is the agent executable. Default: codex (found in PATH)
	Binary string `yaml:"binary"`

	// Model is "model" or "model/reasoning-effort". Empty uses the
	// agent's default.
	Model string `yaml:"model"`

	// APIKey and AuthFile are the two ways to authenticate the agent;
	// exactly one must be set at run time.
	APIKey   string `yaml:"api_key"`
	AuthFile string `yaml:"auth_file"`

	// TimeoutMinutes bounds the agent run. Zero disables the limit.
	// Default: 30
	TimeoutMinutes int `yaml:"timeout_minutes"`

	// MaxOutputBytes caps captured agent output. Default: 10485760
	MaxOutputBytes int `yaml:"max_output_bytes"`

	// Home is the agent's home directory (CODEX_HOME).
	// Default: ${RUNNER_TEMP:-/tmp}/workflow-agent/codex-home
	Home string `yaml:"home"`

	// Prompt is appended to the built-in instructions.
	Prompt string `yaml:"prompt"`

	// PromptTemplate is a file replacing the built-in template.
	PromptTemplate string `yaml:"prompt_template"`
}

// SessionConfig configures session continuity.
type SessionConfig struct {
	// Resume enables restoring and persisting the agent's
	// conversation. Default: true
	Resume bool `yaml:"resume"`

	// ArtifactPrefix prefixes session artifact names.
	// Default: workflow-agent
	ArtifactPrefix string `yaml:"artifact_prefix"`

	// RetentionDays is how long each snapshot is kept. Default: 7
	RetentionDays int `yaml:"retention_days"`

	// StripPaths are removed from the state before upload, relative
	// to the state directory. Default: auth.json, tmp
	StripPaths []string `yaml:"strip_paths"`
}

// StoreConfig selects and configures the artifact store.
type StoreConfig struct {
	// Backend is github, s3 or dir. Default: github
	Backend string `yaml:"backend"`

	// Dir is the root of the dir backend.
	Dir string `yaml:"dir"`

	S3 S3Config `yaml:"s3"`
}

// S3Config configures the s3 backend. Credentials fall back to the AWS
// SDK's default chain when unset.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// BridgeConfig configures the loopback tool bridge.
type BridgeConfig struct {
	// Host must be a loopback address. Default: 127.0.0.1
	Host string `yaml:"host"`

	// Path is the endpoint path. Default: /mcp
	Path string `yaml:"path"`
}

// AccessConfig configures who may trigger the agent.
type AccessConfig struct {
	// TrustedActors skip the write-permission check.
	TrustedActors []string `yaml:"trusted_actors"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level"`

	// Format is auto, text or json. Default: auto
	Format string `yaml:"format"`
}

// Default returns the configuration used before any file, input or flag
// is applied.
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			APIURL: "https://api.github.com",
		},
		Agent: AgentConfig{
			Binary:         "codex",
			TimeoutMinutes: 30,
			MaxOutputBytes: 10485760,
			Home:           "${RUNNER_TEMP:-/tmp}/workflow-agent/codex-home",
		},
		Session: SessionConfig{
			Resume:         true,
			ArtifactPrefix: "workflow-agent",
			RetentionDays:  7,
			StripPaths:     []string{"auth.json", "tmp"},
		},
		Store: StoreConfig{
			Backend: BackendGitHub,
		},
		Bridge: BridgeConfig{
			Host: "127.0.0.1",
			Path: "/mcp",
		},
		Log: LogConfig{
			Level:  "info",
			Format: FormatAuto,
		},
	}
}

// LoadFile loads configuration from a YAML file over the defaults and
// expands ${VAR} references using the process environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.ExpandVariables(os.Getenv)
	return cfg, nil
}

// Load layers the file at path (skipped when empty) and the action
// inputs over the defaults, then expands variables, all through getenv.
// Flags are applied by the caller afterwards.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyActionInputs(getenv); err != nil {
		return nil, err
	}
	cfg.ExpandVariables(getenv)
	return cfg, nil
}

// loadFile merges a YAML file into the current config. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// ExpandVariables expands ${VAR} and ${VAR:-default} in path and
// credential fields, looking variables up through getenv.
func (c *Config) ExpandVariables(getenv func(string) string) {
	for _, field := range []*string{
		&c.GitHub.APIURL,
		&c.GitHub.Token,
		&c.Agent.Binary,
		&c.Agent.APIKey,
		&c.Agent.Home,
		&c.Agent.PromptTemplate,
		&c.Store.Dir,
		&c.Store.S3.Bucket,
		&c.Store.S3.Endpoint,
		&c.Store.S3.AccessKeyID,
		&c.Store.S3.SecretAccessKey,
	} {
		*field = expandVars(*field, getenv)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, getenv func(string) string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// ApplyActionInputs overrides the configuration with GitHub Actions
// inputs read through getenv. Empty inputs leave values unchanged. The
// workflow's own GITHUB_API_URL and GITHUB_TOKEN fill in when neither
// the file nor an input set them. The workflow token comes from the
// workflow_github_token input, falling back to GITHUB_TOKEN.
func (c *Config) ApplyActionInputs(getenv func(string) string) error {
	input := func(name string) string {
		return strings.TrimSpace(getenv("INPUT_" + strings.ToUpper(name)))
	}
	var errs []error

	setString := func(name string, target *string) {
		if value := input(name); value != "" {
			*target = value
		}
	}
	setInt := func(name string, target *int) {
		value := input(name)
		if value == "" {
			return
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("input %s: %q is not an integer", name, value))
			return
		}
		*target = parsed
	}
	setBool := func(name string, target *bool) {
		value := input(name)
		if value == "" {
			return
		}
		parsed, err := strconv.ParseBool(strings.ToLower(value))
		if err != nil {
			errs = append(errs, fmt.Errorf("input %s: %q is not true or false", name, value))
			return
		}
		*target = parsed
	}

	setString("github_token", &c.GitHub.Token)
	setString("github_token_actor", &c.GitHub.TokenActor)
	setString("agent", &c.Agent.Binary)
	setString("agent_api_key", &c.Agent.APIKey)
	setString("model", &c.Agent.Model)
	setInt("timeout_minutes", &c.Agent.TimeoutMinutes)
	setInt("max_output_size", &c.Agent.MaxOutputBytes)
	setBool("resume", &c.Session.Resume)
	setInt("retention_days", &c.Session.RetentionDays)
	setString("store", &c.Store.Backend)
	setString("log_level", &c.Log.Level)

	// Multi-line values keep their inner formatting.
	if value := getenv("INPUT_AGENT_AUTH_FILE"); strings.TrimSpace(value) != "" {
		c.Agent.AuthFile = value
	}
	if value := getenv("INPUT_PROMPT"); strings.TrimSpace(value) != "" {
		c.Agent.Prompt = value
	}
	if value := input("trusted_actors"); value != "" {
		c.Access.TrustedActors = splitList(value)
	}

	c.GitHub.WorkflowToken = input("workflow_github_token")
	if c.GitHub.WorkflowToken == "" {
		c.GitHub.WorkflowToken = getenv("GITHUB_TOKEN")
	}
	if c.GitHub.Token == "" {
		c.GitHub.Token = c.GitHub.WorkflowToken
	}
	if apiURL := getenv("GITHUB_API_URL"); apiURL != "" && c.GitHub.APIURL == Default().GitHub.APIURL {
		c.GitHub.APIURL = apiURL
	}
	return errors.Join(errs...)
}

// splitList splits a comma- or newline-separated input.
func splitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	list := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if !strings.HasPrefix(c.GitHub.APIURL, "https://") {
		errs = append(errs, fmt.Errorf("github.api_url must use https, got %q", c.GitHub.APIURL))
	}
	if c.GitHub.Token == "" {
		errs = append(errs, fmt.Errorf("github.token is required (set the github_token input or GITHUB_TOKEN)"))
	}

	if c.Agent.Binary == "" {
		errs = append(errs, fmt.Errorf("agent.binary is required"))
	}
	if c.Agent.TimeoutMinutes < 0 {
		errs = append(errs, fmt.Errorf("agent.timeout_minutes must not be negative"))
	}
	if c.Agent.MaxOutputBytes <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_output_bytes must be positive"))
	}
	if c.Agent.Home == "" {
		errs = append(errs, fmt.Errorf("agent.home is required"))
	}

	if c.Session.RetentionDays < 1 || c.Session.RetentionDays > 90 {
		errs = append(errs, fmt.Errorf("session.retention_days must be between 1 and 90"))
	}
	for _, strip := range c.Session.StripPaths {
		if !filepath.IsLocal(strip) {
			errs = append(errs, fmt.Errorf("session.strip_paths entry %q must be a relative path inside the state directory", strip))
		}
	}

	backends := []string{BackendGitHub, BackendS3, BackendDir}
	switch c.Store.Backend {
	case BackendS3:
		if c.Store.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("store.s3.bucket is required for the s3 backend"))
		}
	case BackendDir:
		if c.Store.Dir == "" {
			errs = append(errs, fmt.Errorf("store.dir is required for the dir backend"))
		}
	case BackendGitHub:
	default:
		errs = append(errs, fmt.Errorf("store.backend must be one of: %v", backends))
	}

	if !netutil.IsLoopbackHost(c.Bridge.Host) {
		errs = append(errs, fmt.Errorf("bridge.host must be a loopback address, got %q", c.Bridge.Host))
	}
	if !strings.HasPrefix(c.Bridge.Path, "/") {
		errs = append(errs, fmt.Errorf("bridge.path must start with /"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	formats := []string{FormatAuto, FormatText, FormatJSON}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	return errors.Join(errs...)
}

// Timeout is the agent run limit, zero for none.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Agent.TimeoutMinutes) * time.Minute
}

// Retention is how long each session snapshot is kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Session.RetentionDays) * 24 * time.Hour
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return level, nil
}
