package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/pkgrender/internal/logger"
)

// Target binds a package-manager target to its template and output file.
type Target struct {
	// Template is the template path relative to TemplatesDir.
	Template string `yaml:"template"`
	// Output is the path relative to OutputDir; defaults to <target>/<tool_name>.<ext>.
	Output string `yaml:"output,omitempty"`
}

// Config holds the settings of a render run.
type Config struct {
	// ToolName is the distributed tool, used for default output file names.
	ToolName string `yaml:"tool_name"`
	// TemplatesDir is the directory holding per-target templates.
	TemplatesDir string `yaml:"templates_dir"`
	// TemplatePattern discovers templates under TemplatesDir when Targets is empty.
	TemplatePattern string `yaml:"template_pattern,omitempty"`
	// OutputDir is the packaging repository root rendered files are written to.
	OutputDir string `yaml:"output_dir"`
	// Targets lists targets explicitly; discovery is used when empty.
	Targets map[string]Target `yaml:"targets,omitempty"`
	// Workers bounds parallel renders; zero means one worker per target.
	Workers int `yaml:"workers,omitempty"`
	// FetchTimeout bounds the source archive download.
	FetchTimeout time.Duration `yaml:"fetch_timeout,omitempty"`
	// MaxArtifactSize caps the source archive size in bytes.
	MaxArtifactSize int64 `yaml:"max_artifact_size,omitempty"`
	// ArtifactMirror serves http(s) artifact URLs from a local directory by base name.
	ArtifactMirror string `yaml:"artifact_mirror,omitempty"`
	// InspectArchive additionally checks that a .tar.gz source archive is readable.
	InspectArchive bool `yaml:"inspect_archive,omitempty"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`
	// LogFormat is console or json.
	LogFormat string `yaml:"log_format,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for run settings.
	DefaultConfigFilename = "pkgrender.yaml"

	// DefaultTemplatesDir is where templates are looked up by default.
	DefaultTemplatesDir = "build/templates"

	// DefaultTemplatePattern matches every file inside a target directory.
	DefaultTemplatePattern = "*/**/*"

	// DefaultOutputDir is the default packaging repository root.
	DefaultOutputDir = "packaging"

	// DefaultFetchTimeout is the default source archive download timeout.
	DefaultFetchTimeout = 2 * time.Minute

	// DefaultMaxArtifactSize is the default source archive size cap.
	DefaultMaxArtifactSize int64 = 512 << 20

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

// toolNamePattern keeps tool names usable as file names.
var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errToolNameRequired is returned when tool name is missing.
	errToolNameRequired = errors.New("tool name must be provided")
	// errBadToolName is returned when the tool name is not usable as a file name.
	errBadToolName = errors.New("tool name must match [A-Za-z0-9][A-Za-z0-9._-]*")
	// errNegative is returned for negative counts and sizes.
	errNegative = errors.New("must not be negative")
	// errBadPattern is returned for an invalid template discovery pattern.
	errBadPattern = errors.New("invalid template pattern")
	// errTargetTemplate is returned when an explicit target has no template.
	errTargetTemplate = errors.New("target must name a template")
	// errBadLogLevel is returned for an unknown log level.
	errBadLogLevel = errors.New("unknown log level")
	// errBadLogFormat is returned for an unknown log format.
	errBadLogFormat = errors.New("unknown log format")
)

// Default returns a configuration with every default applied.
func Default(toolName string) *Config {
	cfg := &Config{ToolName: toolName}
	applyDefaults(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Config to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting,
// filling in defaults for optional ones.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.ToolName == "" {
		return errToolNameRequired
	}

	if !toolNamePattern.MatchString(settings.ToolName) {
		return fmt.Errorf("%q: %w", settings.ToolName, errBadToolName)
	}

	if settings.Workers < 0 {
		return fmt.Errorf("workers: %w", errNegative)
	}

	if settings.MaxArtifactSize < 0 {
		return fmt.Errorf("max_artifact_size: %w", errNegative)
	}

	if settings.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout: %w", errNegative)
	}

	applyDefaults(settings)

	if !doublestar.ValidatePattern(settings.TemplatePattern) {
		return fmt.Errorf("%q: %w", settings.TemplatePattern, errBadPattern)
	}

	for _, name := range slices.Sorted(maps.Keys(settings.Targets)) {
		if settings.Targets[name].Template == "" {
			return fmt.Errorf("target %s: %w", name, errTargetTemplate)
		}
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("%q: %w", settings.LogLevel, errBadLogLevel)
	}

	if _, ok := logger.ParseFormat(settings.LogFormat); !ok {
		return fmt.Errorf("%q: %w", settings.LogFormat, errBadLogFormat)
	}

	return nil
}

func applyDefaults(settings *Config) {
	if settings.TemplatesDir == "" {
		settings.TemplatesDir = DefaultTemplatesDir
	}

	if settings.TemplatePattern == "" {
		settings.TemplatePattern = DefaultTemplatePattern
	}

	if settings.OutputDir == "" {
		settings.OutputDir = DefaultOutputDir
	}

	if settings.FetchTimeout == 0 {
		settings.FetchTimeout = DefaultFetchTimeout
	}

	if settings.MaxArtifactSize == 0 {
		settings.MaxArtifactSize = DefaultMaxArtifactSize
	}

	if settings.LogLevel == "" {
		settings.LogLevel = "info"
	}

	if settings.LogFormat == "" {
		settings.LogFormat = string(logger.FormatConsole)
	}
}
