// Package document provides the line-indexed text sources that sessions
// condense: in-memory buffers, files on disk and GitHub Actions job logs.
package document

import (
	"fmt"
	"io"
	"strings"

	"github.com/altinukshini/condense/internal/model"
)

// Source is a document the host can open: lines plus a stable identity and
// a display title.
type Source interface {
	model.Document
	ID() string
	Title() string
}

// Lines is an immutable in-memory document.
type Lines []string

// FromString splits text into lines. A trailing newline yields a final empty
// line, CRLF endings are accepted and a leading byte order mark is dropped.
func FromString(text string) Lines {
	text = strings.TrimPrefix(text, "\ufeff")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func Read(r io.Reader) (Lines, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return FromString(string(data)), nil
}

func (l Lines) LineCount() int {
	return len(l)
}

// LineText returns "" for indices outside the document.
func (l Lines) LineText(index int) string {
	if index < 0 || index >= len(l) {
		return ""
	}
	return l[index]
}

// Buffer is a named in-memory document, e.g. text piped on stdin.
type Buffer struct {
	Lines
	id    string
	title string
}

func NewBuffer(id, title string, lines Lines) *Buffer {
	return &Buffer{Lines: lines, id: id, title: title}
}

func (b *Buffer) ID() string    { return b.id }
func (b *Buffer) Title() string { return b.title }
