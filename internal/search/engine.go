package search

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/altinukshini/condense/internal/model"
)

const (
	DefaultCheckEvery   = 1000
	DefaultGrace        = 500 * time.Millisecond
	DefaultInterval     = 200 * time.Millisecond
	DefaultMemoryFactor = 10
)

// ProgressFunc receives (current line, total lines, matching lines so far)
// at each checkpoint. Returning true aborts the scan.
type ProgressFunc func(line, lines, matches int) bool

type Options struct {
	Syntax       Syntax
	CheckEvery   int           // lines between checkpoint tests
	Grace        time.Duration // no checkpoints before this much time has passed
	Interval     time.Duration // minimum time between checkpoints
	MemoryFactor uint64        // abort when heap grows past this multiple
	MatchTimeout time.Duration // per-line match budget, 0 = unlimited
}

func DefaultOptions() Options {
	return Options{
		Syntax:       SyntaxECMAScript,
		CheckEvery:   DefaultCheckEvery,
		Grace:        DefaultGrace,
		Interval:     DefaultInterval,
		MemoryFactor: DefaultMemoryFactor,
	}
}

// Engine turns a document and a pattern into a condensed View. It keeps no
// state between scans and may be shared by any number of goroutines.
type Engine struct {
	opts   Options
	clock  func() time.Time
	memory func() uint64
	yield  func()
}

func New(opts Options) *Engine {
	if opts.CheckEvery <= 0 {
		opts.CheckEvery = DefaultCheckEvery
	}
	if opts.MemoryFactor == 0 {
		opts.MemoryFactor = DefaultMemoryFactor
	}
	if opts.Syntax == "" {
		opts.Syntax = SyntaxECMAScript
	}
	return &Engine{
		opts:   opts,
		clock:  time.Now,
		memory: heapInUse,
		yield:  runtime.Gosched,
	}
}

func (e *Engine) withClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

func (e *Engine) withMemory(memory func() uint64) *Engine {
	e.memory = memory
	return e
}

// Validate reports whether pattern compiles under the engine's syntax.
func (e *Engine) Validate(pattern string) error {
	_, err := Compile(pattern, e.opts.Syntax, e.opts.MatchTimeout)
	return err
}

// Scan condenses doc against pattern. An empty pattern yields an empty View.
func (e *Engine) Scan(ctx context.Context, doc model.Document, pattern string, onProgress ProgressFunc) model.View {
	if pattern == "" {
		return model.View{}
	}
	m, err := Compile(pattern, e.opts.Syntax, e.opts.MatchTimeout)
	if err != nil {
		return model.View{Error: model.MsgInvalidPattern}
	}
	return e.ScanMatcher(ctx, doc, m, onProgress)
}

// ScanMatcher runs the line walk with an already compiled matcher.
//
// A line with at least one match closes the block that precedes it: the
// lines before the first match (only when the first match is past line 1),
// or the block opened by the previous match when at least one line lies in
// between. Every matching line opens a new block; the last one runs to the
// end of the document unless it is the last line itself.
func (e *Engine) ScanMatcher(ctx context.Context, doc model.Document, m Matcher, onProgress ProgressFunc) (view model.View) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scan: %v", r)
			view = model.View{Error: fmt.Sprint(r)}
		}
	}()

	var (
		ranges     []model.LineRange
		highlights []model.HighlightSpan
		matches    int
	)
	lineCount := doc.LineCount()
	cp := newCheckpoint(e.opts, e.clock, e.memory)
	rangeStart := -1

	for idx := 0; idx < lineCount; idx++ {
		if idx%e.opts.CheckEvery == 0 && cp.due() {
			if ctx.Err() != nil || (onProgress != nil && onProgress(idx, lineCount, matches)) {
				return model.View{Error: model.MsgAborted}
			}
			e.yield()
			if cp.exhausted() {
				return model.View{Error: model.MsgTooManyHits}
			}
		}

		text := doc.LineText(idx)
		found, err := m.FindAll(text)
		if err != nil {
			log.Printf("scan: line %d: %v", idx, err)
			return model.View{Error: err.Error()}
		}
		if found == nil {
			continue
		}

		matches++
		switch {
		case rangeStart < 0 && idx > 1:
			ranges = append(ranges, model.LineRange{Start: 0, End: idx - 1})
		case rangeStart >= 0 && rangeStart != idx-1:
			ranges = append(ranges, model.LineRange{Start: rangeStart, End: idx - 1})
		}
		rangeStart = idx
		highlights = appendSpans(highlights, idx, text, found)
	}
	if rangeStart >= 0 && rangeStart != lineCount-1 {
		ranges = append(ranges, model.LineRange{Start: rangeStart, End: lineCount - 1})
	}

	log.Printf("scan: memory usage: %d MB", e.memory()>>20)
	return model.View{Ranges: ranges, Highlights: highlights, Matches: matches}
}
