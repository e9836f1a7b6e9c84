package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/todotrail/internal/attribution"
	"github.com/starford/todotrail/internal/index"
	"github.com/starford/todotrail/internal/models"
	"github.com/starford/todotrail/internal/workspace"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Workspace   WorkspaceConfig   `yaml:"workspace"`
	Patterns    PatternSet        `yaml:"patterns"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Attribution AttributionConfig `yaml:"attribution"`
	Watch       WatchConfig       `yaml:"watch"`
	Export      ExportConfig      `yaml:"export"`
	Auth        AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if err := c.Patterns.Validate(); err != nil {
		return fmt.Errorf("patterns: %w", err)
	}
	if err := c.Attribution.Validate(); err != nil {
		return fmt.Errorf("attribution: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WorkspaceConfig describes the tree to scan.
type WorkspaceConfig struct {
	Root        string          `yaml:"root"`
	Exclude     string          `yaml:"exclude"`
	MaxResults  int             `yaml:"max_results"`
	MaxFileSize int64           `yaml:"max_file_size"`
	ViewMode    models.ViewMode `yaml:"view_mode"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.MaxResults, validation.Min(1)),
		validation.Field(&c.MaxFileSize, validation.Min(int64(1))),
		validation.Field(&c.ViewMode, validation.In(models.ViewByFile, models.ViewByAuthor)),
	)
}

// ExcludePatterns returns the parsed exclude globs.
func (c *WorkspaceConfig) ExcludePatterns() []string {
	return workspace.ParseExclude(c.Exclude)
}

// PatternSet is the ordered list of configured annotation types. In YAML it
// is a mapping from type keyword to display metadata; mapping order is kept.
type PatternSet []models.Pattern

// UnmarshalYAML decodes the mapping node directly so key order survives.
func (p *PatternSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: patterns must be a mapping", node.Line)
	}
	out := make(PatternSet, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var meta struct {
			Icon  string `yaml:"icon"`
			Color string `yaml:"color"`
		}
		if err := node.Content[i+1].Decode(&meta); err != nil {
			return fmt.Errorf("line %d: %w", node.Content[i+1].Line, err)
		}
		out = append(out, models.Pattern{
			Type:  strings.TrimSpace(node.Content[i].Value),
			Icon:  meta.Icon,
			Color: meta.Color,
		})
	}
	*p = out
	return nil
}

// Validate rejects empty and duplicate keywords. An empty set is allowed and
// yields an empty corpus.
func (p PatternSet) Validate() error {
	seen := make(map[string]struct{}, len(p))
	for _, pat := range p {
		if pat.Type == "" {
			return fmt.Errorf("empty type keyword")
		}
		key := strings.ToUpper(pat.Type)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate type keyword %q", pat.Type)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Types returns the configured keywords in order.
func (p PatternSet) Types() []string {
	out := make([]string, len(p))
	for i, pat := range p {
		out[i] = pat.Type
	}
	return out
}

// DefaultPatterns returns the built-in type table.
func DefaultPatterns() PatternSet {
	return PatternSet{
		{Type: "TODO", Icon: "check", Color: "#4EC9B0"},
		{Type: "FIXME", Icon: "bug", Color: "#F48771"},
		{Type: "NOTE", Icon: "note", Color: "#569CD6"},
		{Type: "HACK", Icon: "alert", Color: "#CE9178"},
		{Type: "XXX", Icon: "x", Color: "#F48771"},
	}
}

// ClassifierConfig overrides the keyword lists used for severity inference.
// Nil lists keep the built-in defaults.
type ClassifierConfig struct {
	UrgentKeywords    []string `yaml:"urgent_keywords"`
	TemporaryKeywords []string `yaml:"temporary_keywords"`
}

// AttributionConfig controls version-history lookups.
type AttributionConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Command    string        `yaml:"command"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheFiles int           `yaml:"cache_files"`
}

// Validate validates the attribution configuration.
func (c *AttributionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Command, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.CacheFiles, validation.Required, validation.Min(1)),
	)
}

// WatchConfig controls the file watcher.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// ExportConfig configures the optional SQLite snapshot mirror.
type ExportConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether snapshots are mirrored after every refresh.
func (c *ExportConfig) Enabled() bool {
	return c.Path != ""
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Workspace: WorkspaceConfig{
			Root:        ".",
			Exclude:     workspace.DefaultExclude,
			MaxResults:  workspace.DefaultMaxResults,
			MaxFileSize: workspace.DefaultMaxFileSize,
			ViewMode:    models.ViewByFile,
		},
		Patterns: DefaultPatterns(),
		Attribution: AttributionConfig{
			Enabled:    true,
			Command:    attribution.DefaultCommand,
			Timeout:    attribution.DefaultTimeout,
			CacheFiles: attribution.DefaultCacheSize,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: index.DefaultDebounce,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
