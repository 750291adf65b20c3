package search

import (
	"fmt"
	"regexp"
	"time"

	"github.com/dlclark/regexp2"
)

// Syntax selects the regular expression dialect used for patterns.
type Syntax string

const (
	// SyntaxECMAScript follows JavaScript RegExp rules (the default).
	SyntaxECMAScript Syntax = "ecmascript"
	// SyntaxRE2 uses Go's regexp package.
	SyntaxRE2 Syntax = "re2"
)

func ParseSyntax(s string) (Syntax, error) {
	switch Syntax(s) {
	case "", SyntaxECMAScript:
		return SyntaxECMAScript, nil
	case SyntaxRE2:
		return SyntaxRE2, nil
	}
	return "", fmt.Errorf("unknown pattern syntax %q (want %q or %q)", s, SyntaxECMAScript, SyntaxRE2)
}

// Matcher finds every match occurrence in a line, left to right.
// A nil result means the line does not match; empty strings are valid
// occurrences of patterns that can match nothing.
type Matcher interface {
	FindAll(line string) ([]string, error)
}

// Compile builds a Matcher for pattern. A positive timeout bounds the time a
// single line match may take (ECMAScript syntax only); exceeding it makes
// FindAll return an error.
func Compile(pattern string, syntax Syntax, timeout time.Duration) (Matcher, error) {
	if syntax == SyntaxRE2 {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		return re2Matcher{re: re}, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	return ecmaMatcher{re: re}, nil
}

type ecmaMatcher struct {
	re *regexp2.Regexp
}

func (m ecmaMatcher) FindAll(line string) ([]string, error) {
	var found []string
	match, err := m.re.FindStringMatch(line)
	for match != nil && err == nil {
		found = append(found, match.String())
		match, err = m.re.FindNextMatch(match)
	}
	if err != nil {
		return nil, err
	}
	return found, nil
}

type re2Matcher struct {
	re *regexp.Regexp
}

func (m re2Matcher) FindAll(line string) ([]string, error) {
	return m.re.FindAllString(line, -1), nil
}
