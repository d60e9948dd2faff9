package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// SentenceSplitter breaks text into sentences. Implementations must be
// deterministic and return trimmed, non-empty sentences in text order.
type SentenceSplitter interface {
	Split(text string) []string
}

// EnglishSplitter detects sentence boundaries with the Punkt model trained
// for English, which handles abbreviations and initials.
type EnglishSplitter struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewEnglishSplitter loads the bundled English Punkt model.
func NewEnglishSplitter() (*EnglishSplitter, error) {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load english sentence model: %w", err)
	}
	return &EnglishSplitter{tokenizer: tokenizer}, nil
}

// Split implements SentenceSplitter.
func (s *EnglishSplitter) Split(text string) []string {
	tokens := s.tokenizer.Tokenize(text)
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if sentence := normalizeSpace(t.Text); sentence != "" {
			out = append(out, sentence)
		}
	}
	return out
}

// RuleSplitter ends a sentence after a run of '.', '!' or '?' (and any
// closing quotes or brackets) that is followed by whitespace or the end of
// the text.
type RuleSplitter struct{}

// Split implements SentenceSplitter.
func (RuleSplitter) Split(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && (isTerminal(runes[end]) || isCloser(runes[end])) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}
		if sentence := normalizeSpace(string(runes[start:end])); sentence != "" {
			out = append(out, sentence)
		}
		start = end
		i = end - 1
	}

	if sentence := normalizeSpace(string(runes[start:])); sentence != "" {
		out = append(out, sentence)
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '»', '”', '’':
		return true
	}
	return false
}

// normalizeSpace trims s and collapses internal whitespace runs, which PDF
// extraction produces at every line break.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
