// Package config loads cbx settings from a YAML file, CBX_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jtodic/commit-builder/pkg/bisect"
)

const (
	EnvPrefix      = "CBX"
	ConfigName     = "config"
	DefaultRepoURL = "https://hg.mozilla.org/mozilla-central"
)

type Config struct {
	// VCS is "hg" or "git".
	VCS        string `yaml:"vcs" mapstructure:"vcs"`
	RepoURL    string `yaml:"repo_url" mapstructure:"repo_url"`
	PushlogURL string `yaml:"pushlog_url" mapstructure:"pushlog_url"`
	CacheDir   string `yaml:"cache_dir" mapstructure:"cache_dir"`

	Build       BuildConfig       `yaml:"build" mapstructure:"build"`
	App         AppConfig         `yaml:"app" mapstructure:"app"`
	Bisect      BisectConfig      `yaml:"bisect" mapstructure:"bisect"`
	Termination TerminationConfig `yaml:"termination" mapstructure:"termination"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
}

type BuildConfig struct {
	// Backend is "command" or "docker".
	Backend        string `yaml:"backend" mapstructure:"backend"`
	Command        string `yaml:"command" mapstructure:"command"`
	PackageCommand string `yaml:"package_command" mapstructure:"package_command"`
	Jobs           int    `yaml:"jobs" mapstructure:"jobs"`
	// Timeout bounds one build, e.g. "45m". Empty or "0" disables it.
	Timeout string `yaml:"timeout" mapstructure:"timeout"`
	ObjDir  string `yaml:"objdir" mapstructure:"objdir"`
	// ConfigFile is an external build configuration to start from.
	ConfigFile  string   `yaml:"config_file" mapstructure:"config_file"`
	ShowOutput  bool     `yaml:"show_output" mapstructure:"show_output"`
	Dockerfile  string   `yaml:"dockerfile" mapstructure:"dockerfile"`
	ExcludeDirs []string `yaml:"exclude_dirs" mapstructure:"exclude_dirs"`
}

// TimeoutDuration parses Timeout.
func (b BuildConfig) TimeoutDuration() (time.Duration, error) {
	if b.Timeout == "" || b.Timeout == "0" {
		return 0, nil
	}
	return time.ParseDuration(b.Timeout)
}

type AppConfig struct {
	// Binary overrides the per-platform location under the object directory.
	Binary string   `yaml:"binary" mapstructure:"binary"`
	Args   []string `yaml:"args" mapstructure:"args"`
}

type BisectConfig struct {
	MaxSteps   int `yaml:"max_steps" mapstructure:"max_steps"`
	MaxExtends int `yaml:"max_extends" mapstructure:"max_extends"`
	// Condition is the default test condition command line.
	Condition string `yaml:"condition" mapstructure:"condition"`
	// ConditionInit runs `<condition> --init` once per session.
	ConditionInit bool `yaml:"condition_init" mapstructure:"condition_init"`
}

// TerminationConfig overrides the default rule table and patterns of the
// configured VCS. Empty fields keep the defaults.
type TerminationConfig struct {
	Rules     []RuleConfig `yaml:"rules,omitempty" mapstructure:"rules"`
	Located   string       `yaml:"located,omitempty" mapstructure:"located"`
	Suggested string       `yaml:"suggested,omitempty" mapstructure:"suggested"`
	Remaining string       `yaml:"remaining,omitempty" mapstructure:"remaining"`
}

type RuleConfig struct {
	Phrase string `yaml:"phrase" mapstructure:"phrase"`
	Class  string `yaml:"class" mapstructure:"class"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format" mapstructure:"format"`
}

// ConfigError reports an invalid setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in field '%s': %s", e.Field, e.Message)
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		VCS:        "hg",
		RepoURL:    DefaultRepoURL,
		PushlogURL: DefaultRepoURL,
		CacheDir:   filepath.Join("~", ".commit-builder-cache"),
		Build: BuildConfig{
			Backend:        "command",
			Command:        "make -f client.mk build",
			PackageCommand: "make package",
			Jobs:           runtime.NumCPU(),
			ObjDir:         "obj-ff-dbg",
			Dockerfile:     "Dockerfile",
		},
		Bisect: BisectConfig{
			MaxExtends: bisect.DefaultMaxExtends,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("vcs", d.VCS)
	v.SetDefault("repo_url", d.RepoURL)
	v.SetDefault("pushlog_url", d.PushlogURL)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("build.backend", d.Build.Backend)
	v.SetDefault("build.command", d.Build.Command)
	v.SetDefault("build.package_command", d.Build.PackageCommand)
	v.SetDefault("build.jobs", d.Build.Jobs)
	v.SetDefault("build.timeout", d.Build.Timeout)
	v.SetDefault("build.objdir", d.Build.ObjDir)
	v.SetDefault("build.config_file", d.Build.ConfigFile)
	v.SetDefault("build.show_output", d.Build.ShowOutput)
	v.SetDefault("build.dockerfile", d.Build.Dockerfile)
	v.SetDefault("app.binary", d.App.Binary)
	v.SetDefault("bisect.max_steps", d.Bisect.MaxSteps)
	v.SetDefault("bisect.max_extends", d.Bisect.MaxExtends)
	v.SetDefault("bisect.condition", d.Bisect.Condition)
	v.SetDefault("bisect.condition_init", d.Bisect.ConditionInit)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// FlagKeys maps command-line flag names to the settings they override.
var FlagKeys = map[string]string{
	"vcs":          "vcs",
	"repo":         "repo_url",
	"pushlog":      "pushlog_url",
	"cache-dir":    "cache_dir",
	"jobs":         "build.jobs",
	"build-config": "build.config_file",
	"builder":      "build.backend",
	"timeout":      "build.timeout",
	"max-steps":    "bisect.max_steps",
}

// Load reads path, or config.yaml from the working directory or
// ~/.config/cbx when path is empty. A missing default file is not an error.
// Flags in flags that were set on the command line override everything.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "cbx"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expand() error {
	if c.CacheDir == "~" || strings.HasPrefix(c.CacheDir, "~/") || strings.HasPrefix(c.CacheDir, "~"+string(filepath.Separator)) {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to expand cache dir: %w", err)
		}
		c.CacheDir = filepath.Join(home, strings.TrimPrefix(c.CacheDir, "~"))
	}
	return nil
}

// Validate checks settings that would otherwise fail deep inside a session.
func (c *Config) Validate() error {
	switch c.VCS {
	case "hg", "git":
	default:
		return &ConfigError{Field: "vcs", Message: fmt.Sprintf("unsupported vcs %q (use hg or git)", c.VCS)}
	}
	if c.CacheDir == "" {
		return &ConfigError{Field: "cache_dir", Message: "must not be empty"}
	}
	switch c.Build.Backend {
	case "command", "docker":
	default:
		return &ConfigError{Field: "build.backend", Message: fmt.Sprintf("unsupported backend %q (use command or docker)", c.Build.Backend)}
	}
	if c.Build.Jobs < 1 {
		return &ConfigError{Field: "build.jobs", Message: "must be at least 1"}
	}
	if _, err := c.Build.TimeoutDuration(); err != nil {
		return &ConfigError{Field: "build.timeout", Message: err.Error()}
	}
	if c.Bisect.MaxSteps < 0 {
		return &ConfigError{Field: "bisect.max_steps", Message: "must not be negative"}
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unsupported format %q", c.Logging.Format)}
	}
	for i, r := range c.Termination.Rules {
		if r.Phrase == "" {
			return &ConfigError{Field: fmt.Sprintf("termination.rules[%d].phrase", i), Message: "must not be empty"}
		}
		if _, err := bisect.ParseClass(r.Class); err != nil {
			return &ConfigError{Field: fmt.Sprintf("termination.rules[%d].class", i), Message: err.Error()}
		}
	}
	return nil
}

// Detector builds the termination detector for the configured VCS.
func (c *Config) Detector() (*bisect.Detector, error) {
	rules, patterns := bisect.Defaults(c.VCS)
	t := c.Termination
	if len(t.Rules) > 0 {
		rules = make([]bisect.Rule, 0, len(t.Rules))
		for _, r := range t.Rules {
			class, err := bisect.ParseClass(r.Class)
			if err != nil {
				return nil, err
			}
			rules = append(rules, bisect.Rule{Phrase: r.Phrase, Class: class})
		}
	}
	if t.Located != "" {
		patterns.Located = t.Located
	}
	if t.Suggested != "" {
		patterns.Suggested = t.Suggested
	}
	if t.Remaining != "" {
		patterns.Remaining = t.Remaining
	}
	return bisect.NewDetector(rules, patterns)
}

func (c *Config) TrunkDir() string        { return filepath.Join(c.CacheDir, "trunk") }
func (c *Config) BuildConfigPath() string { return filepath.Join(c.CacheDir, "buildconf", "config-default") }
func (c *Config) BuildsDir() string       { return filepath.Join(c.CacheDir, "builds") }
func (c *Config) ScratchDir() string      { return filepath.Join(c.CacheDir, "scratch") }

// ObjDir is the absolute object directory inside the working copy.
func (c *Config) ObjDir() string { return filepath.Join(c.TrunkDir(), c.Build.ObjDir) }

// Write stores cfg as YAML at path, creating parent directories.
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// DefaultPath is where `cbx config init` writes when no path is given.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "cbx", ConfigName+".yaml"), nil
}
