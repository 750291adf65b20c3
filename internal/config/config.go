package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/altinukshini/condense/internal/search"
	"github.com/altinukshini/condense/internal/session"
)

type Config struct {
	Owner string `toml:"-" yaml:"-"`
	Repo  string `toml:"-" yaml:"-"`

	GitHub  GitHubConfig `toml:"github" yaml:"github"`
	Scan    ScanConfig   `toml:"scan" yaml:"scan"`
	Delays  DelayConfig  `toml:"delays" yaml:"delays"`
	Cache   CacheConfig  `toml:"cache" yaml:"cache"`
	LogFile string       `toml:"log_file" yaml:"log_file"`
	Follow  bool         `toml:"follow" yaml:"follow"`
}

type GitHubConfig struct {
	Repo            string `toml:"repo" yaml:"repo"` // owner/repo
	StripTimestamps bool   `toml:"strip_timestamps" yaml:"strip_timestamps"`
}

type ScanConfig struct {
	Syntax       string        `toml:"syntax" yaml:"syntax"`
	CheckEvery   int           `toml:"check_every" yaml:"check_every"`
	Grace        time.Duration `toml:"grace" yaml:"grace"`
	Interval     time.Duration `toml:"interval" yaml:"interval"`
	MemoryFactor int           `toml:"memory_factor" yaml:"memory_factor"`
	MatchTimeout time.Duration `toml:"match_timeout" yaml:"match_timeout"`
}

type DelayConfig struct {
	Input    time.Duration `toml:"input" yaml:"input"`
	History  time.Duration `toml:"history" yaml:"history"`
	Expedite time.Duration `toml:"expedite" yaml:"expedite"`
}

type CacheConfig struct {
	Dir    string        `toml:"dir" yaml:"dir"`
	SizeMB int           `toml:"size_mb" yaml:"size_mb"`
	TTL    time.Duration `toml:"ttl" yaml:"ttl"`
}

func Default() Config {
	return Config{
		Scan: ScanConfig{
			Syntax:       string(search.SyntaxECMAScript),
			CheckEvery:   search.DefaultCheckEvery,
			Grace:        search.DefaultGrace,
			Interval:     search.DefaultInterval,
			MemoryFactor: search.DefaultMemoryFactor,
		},
		Delays: DelayConfig{
			Input:    session.DefaultInputDelay,
			History:  session.DefaultHistoryDelay,
			Expedite: session.DefaultExpediteDelay,
		},
		Cache: CacheConfig{
			Dir:    filepath.Join(os.TempDir(), "condense", "logs"),
			SizeMB: 500,
			TTL:    24 * time.Hour,
		},
	}
}

// DefaultPath is where LoadDefault looks for a config file.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "condense", "config.toml"), nil
}

// Load reads a TOML or YAML file (by extension) over the defaults.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config format %q (want .toml, .yaml or .yml)", ext)
	}
	if cfg.GitHub.Repo != "" {
		if err := cfg.SetRepo(cfg.GitHub.Repo); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

// LoadDefault loads the file at DefaultPath; a missing file yields defaults.
func LoadDefault() (Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// SetRepo sets Owner and Repo from an owner/repo string.
func (c *Config) SetRepo(nwo string) error {
	parts := strings.SplitN(nwo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("repo must be in owner/repo format, got %q", nwo)
	}
	c.Owner, c.Repo = parts[0], parts[1]
	c.GitHub.Repo = nwo
	return nil
}

func (c Config) RepoNWO() string {
	return fmt.Sprintf("%s/%s", c.Owner, c.Repo)
}

// ValidateRepo checks the settings needed to open GitHub job logs.
func (c Config) ValidateRepo() error {
	if c.Owner == "" || c.Repo == "" {
		return fmt.Errorf("owner and repo are required (use -R owner/repo)")
	}
	return nil
}

func (c Config) Validate() error {
	if _, err := search.ParseSyntax(c.Scan.Syntax); err != nil {
		return err
	}
	if c.Scan.CheckEvery <= 0 {
		return fmt.Errorf("scan.check_every must be positive, got %d", c.Scan.CheckEvery)
	}
	if c.Scan.MemoryFactor < 1 {
		return fmt.Errorf("scan.memory_factor must be at least 1, got %d", c.Scan.MemoryFactor)
	}
	for name, d := range map[string]time.Duration{
		"scan.grace":         c.Scan.Grace,
		"scan.interval":      c.Scan.Interval,
		"scan.match_timeout": c.Scan.MatchTimeout,
		"delays.input":       c.Delays.Input,
		"delays.history":     c.Delays.History,
		"delays.expedite":    c.Delays.Expedite,
		"cache.ttl":          c.Cache.TTL,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	if c.Cache.SizeMB <= 0 {
		return fmt.Errorf("cache.size_mb must be positive, got %d", c.Cache.SizeMB)
	}
	return nil
}

func (c Config) EngineOptions() search.Options {
	syntax, _ := search.ParseSyntax(c.Scan.Syntax)
	return search.Options{
		Syntax:       syntax,
		CheckEvery:   c.Scan.CheckEvery,
		Grace:        c.Scan.Grace,
		Interval:     c.Scan.Interval,
		MemoryFactor: uint64(c.Scan.MemoryFactor),
		MatchTimeout: c.Scan.MatchTimeout,
	}
}

func (c Config) SessionDelays() session.Delays {
	return session.Delays{
		Input:    c.Delays.Input,
		History:  c.Delays.History,
		Expedite: c.Delays.Expedite,
	}
}
