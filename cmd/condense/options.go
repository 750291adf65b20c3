package main

import (
	"time"

	"github.com/altinukshini/condense/internal/config"
)

// Options are the command line flags, interpreted by
// github.com/jessevdk/go-flags. Flags left at their zero value keep the
// config file's setting.
type Options struct {
	Config          string        `short:"c" long:"config" description:"config file (.toml, .yaml or .yml)"`
	Repo            string        `short:"R" long:"repo" description:"repository in owner/repo format, for --job and --run"`
	Jobs            []int64       `long:"job" description:"open the log of a GitHub Actions job (repeatable)"`
	Run             int64         `long:"run" description:"open the logs of every started job of a workflow run"`
	Filter          string        `short:"f" long:"filter" description:"condense every document with this pattern on start"`
	Syntax          string        `long:"syntax" choice:"ecmascript" choice:"re2" description:"regular expression syntax"`
	Follow          bool          `long:"follow" description:"reload files when they change on disk"`
	StripTimestamps bool          `long:"strip-timestamps" description:"drop the timestamp GitHub prefixes to job log lines"`
	LogFile         string        `long:"log" description:"write a debug log to this file"`
	CacheSize       int           `long:"cache-size" description:"max job log cache size in MB"`
	CacheTTL        time.Duration `long:"cache-ttl" description:"job log cache TTL"`
	ClearCache      bool          `long:"clear-cache" description:"delete cached job logs and exit"`
	Version         bool          `long:"version" description:"print version and exit"`

	Args struct {
		Files []string `positional-arg-name:"FILE"`
	} `positional-args:"yes"`
}

func (o *Options) wantsJobs() bool {
	return len(o.Jobs) > 0 || o.Run != 0
}

// apply layers the flags over cfg.
func (o *Options) apply(cfg *config.Config) error {
	if o.Repo != "" {
		if err := cfg.SetRepo(o.Repo); err != nil {
			return err
		}
	}
	if o.Syntax != "" {
		cfg.Scan.Syntax = o.Syntax
	}
	if o.Follow {
		cfg.Follow = true
	}
	if o.StripTimestamps {
		cfg.GitHub.StripTimestamps = true
	}
	if o.LogFile != "" {
		cfg.LogFile = o.LogFile
	}
	if o.CacheSize > 0 {
		cfg.Cache.SizeMB = o.CacheSize
	}
	if o.CacheTTL > 0 {
		cfg.Cache.TTL = o.CacheTTL
	}
	if o.wantsJobs() {
		if err := cfg.ValidateRepo(); err != nil {
			return err
		}
	}
	return cfg.Validate()
}

func loadConfig(o *Options) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if o.Config != "" {
		cfg, err = config.Load(o.Config)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return cfg, err
	}
	return cfg, o.apply(&cfg)
}
