// Package moderation implements the staged moderation pipeline that gates
// comment bodies before they are persisted.
package moderation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MatchKind is the verdict of a lexicon pass over a body.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchSoft
	MatchHard
)

// Lexicon holds the configured sensitive-word lists. Hard terms block a
// comment outright; soft terms flag it for review.
type Lexicon struct {
	hard []string
	soft []string
}

type lexiconFile struct {
	Hard []string `yaml:"hard"`
	Soft []string `yaml:"soft"`
}

// LoadLexicon reads a YAML lexicon file with `hard` and `soft` term lists.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}

	var file lexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}

	return NewLexicon(file.Hard, file.Soft), nil
}

// NewLexicon builds a lexicon from term lists. Terms are matched
// case-insensitively as substrings.
func NewLexicon(hard, soft []string) *Lexicon {
	l := &Lexicon{}
	for _, term := range hard {
		if t := strings.ToLower(strings.TrimSpace(term)); t != "" {
			l.hard = append(l.hard, t)
		}
	}
	for _, term := range soft {
		if t := strings.ToLower(strings.TrimSpace(term)); t != "" {
			l.soft = append(l.soft, t)
		}
	}
	return l
}

// Match scans body against the configured terms. Markup is stripped first so
// emphasis or tags cannot split a term ("free <b>crypto</b>" still matches
// "free crypto"). Hard matches win over soft matches. The matched term stays
// internal; callers only see the kind.
func (l *Lexicon) Match(body string) MatchKind {
	lowered := stripMarkup(strings.ToLower(body))
	for _, term := range l.hard {
		if strings.Contains(lowered, term) {
			return MatchHard
		}
	}
	for _, term := range l.soft {
		if strings.Contains(lowered, term) {
			return MatchSoft
		}
	}
	return MatchNone
}

// stripMarkup drops HTML tags and markdown emphasis characters and collapses
// runs of whitespace to a single space.
func stripMarkup(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	lastSpace := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case inTag:
		case r == '*' || r == '_' || r == '~' || r == '`':
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		default:
			b.WriteRune(r)
		}
		lastSpace = false
	}
	return b.String()
}
