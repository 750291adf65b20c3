package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/altinukshini/condense/internal/api"
	"github.com/altinukshini/condense/internal/cache"
	"github.com/altinukshini/condense/internal/config"
	"github.com/altinukshini/condense/internal/document"
	"github.com/altinukshini/condense/internal/search"
	"github.com/altinukshini/condense/internal/session"
	"github.com/altinukshini/condense/internal/tui"
	"github.com/altinukshini/condense/internal/ui"
)

var version = "dev"

func init() {
	if version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
}

func main() {
	opts := &Options{}
	parser := flags.NewParser(opts, flags.Default)
	parser.Usage = "[OPTIONS] [FILE...]"
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Println("condense", version)
		os.Exit(0)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	closeLog, err := setupLogging(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if opts.ClearCache {
		dir, freed, err := clearCache(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cache error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Cleared %s (%d KB freed)\n", dir, freed>>10)
		return
	}

	if err := run(cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, opts *Options) error {
	docs, err := openFiles(opts.Args.Files)
	if err != nil {
		return err
	}

	// Text piped on stdin; keys are then read from the terminal.
	var programOpts []tea.ProgramOption
	if len(docs) == 0 && !opts.wantsJobs() && !term.IsTerminal(int(os.Stdin.Fd())) {
		lines, err := document.Read(os.Stdin)
		if err != nil {
			return err
		}
		docs = append(docs, document.NewBuffer("stdin", "<stdin>", lines))
		programOpts = append(programOpts, tea.WithInputTTY())
	}

	var load tea.Cmd
	if opts.wantsJobs() {
		load, err = jobLoader(cfg, opts)
		if err != nil {
			return err
		}
	}
	if len(docs) == 0 && load == nil {
		return errors.New("nothing to condense: give files, pipe text on stdin or use --job/--run")
	}

	var follower *document.Follower
	if cfg.Follow {
		follower, err = document.NewFollower(document.DefaultFollowDebounce)
		if err != nil {
			return fmt.Errorf("follow: %w", err)
		}
		defer follower.Close()
	}

	bridge := tui.NewBridge()
	coord := session.New(search.New(cfg.EngineOptions()), bridge, cfg.SessionDelays())
	defer func() {
		coord.Shutdown()
		bridge.Close()
	}()

	repo := ""
	if opts.wantsJobs() {
		repo = cfg.RepoNWO()
	}
	app := tui.NewApp(coord, bridge, docs, tui.Options{
		Repo:     repo,
		Filter:   opts.Filter,
		Load:     load,
		Follower: follower,
	})

	programOpts = append(programOpts, tea.WithAltScreen())
	p := tea.NewProgram(app, programOpts...)
	_, err = p.Run()
	return err
}

func openFiles(paths []string) ([]document.Source, error) {
	var docs []document.Source
	for _, path := range paths {
		f, err := document.OpenFile(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, f)
	}
	return docs, nil
}

// jobLoader returns the command that fetches the requested job logs once the
// program runs.
func jobLoader(cfg config.Config, opts *Options) (tea.Cmd, error) {
	client, err := api.NewClient(cfg.Owner, cfg.Repo)
	if err != nil {
		return nil, fmt.Errorf("auth: %w (make sure you are authenticated with: gh auth login)", err)
	}
	logCache, err := cache.NewLogCache(cfg.Cache.Dir, cfg.Cache.SizeMB, cfg.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	if err := logCache.Evict(); err != nil {
		log.Printf("cache evict: %v", err)
	}
	jobLogs := document.NewJobLogs(client, logCache, cfg.GitHub.StripTimestamps)

	jobs, runID := opts.Jobs, opts.Run
	return func() tea.Msg {
		ctx := context.Background()
		var docs []document.Source
		for _, id := range jobs {
			jl, err := jobLogs.Open(ctx, id)
			if err != nil {
				return ui.DocumentsLoadedMsg{Err: err}
			}
			docs = append(docs, jl)
		}
		if runID != 0 {
			jls, err := jobLogs.OpenRun(ctx, runID)
			if err != nil {
				return ui.DocumentsLoadedMsg{Err: err}
			}
			for _, jl := range jls {
				docs = append(docs, jl)
			}
		}
		return ui.DocumentsLoadedMsg{Docs: docs}
	}, nil
}

// clearCache empties the job log cache and reports its directory and the
// bytes freed.
func clearCache(cfg config.Config) (string, int64, error) {
	logCache, err := cache.NewLogCache(cfg.Cache.Dir, cfg.Cache.SizeMB, cfg.Cache.TTL)
	if err != nil {
		return "", 0, err
	}
	size, err := logCache.TotalSize()
	if err != nil {
		return "", 0, err
	}
	if err := logCache.DeleteAll(); err != nil {
		return "", 0, err
	}
	return logCache.Dir(), size, nil
}

// setupLogging sends the global logger to path. Without a path logs are
// dropped: the terminal belongs to the UI.
func setupLogging(path string) (func(), error) {
	if path == "" {
		log.SetOutput(io.Discard)
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("condense %s starting", version)
	return func() { f.Close() }, nil
}
