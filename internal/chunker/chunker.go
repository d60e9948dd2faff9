package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/phrazzld/lector/internal/domain"
)

// Default window sizes, in characters.
const (
	DefaultMaxChars     = 2000
	DefaultOverlapChars = 200
)

// Chunker produces overlapping sentence-aligned chunks. It is safe for
// concurrent use as long as its splitter is.
type Chunker struct {
	maxChars     int
	overlapChars int
	splitter     SentenceSplitter
}

// New creates a Chunker. Invalid window sizes are rejected here so that a
// misconfigured worker fails at startup rather than on its first document.
// A nil splitter selects RuleSplitter.
func New(maxChars, overlapChars int, splitter SentenceSplitter) (*Chunker, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("%w: max chars must be positive, got %d", domain.ErrValidation, maxChars)
	}
	if overlapChars < 0 {
		return nil, fmt.Errorf("%w: overlap chars cannot be negative, got %d", domain.ErrValidation, overlapChars)
	}
	if overlapChars >= maxChars {
		return nil, fmt.Errorf("%w: overlap chars (%d) must be less than max chars (%d)",
			domain.ErrValidation, overlapChars, maxChars)
	}
	if splitter == nil {
		splitter = RuleSplitter{}
	}

	return &Chunker{
		maxChars:     maxChars,
		overlapChars: overlapChars,
		splitter:     splitter,
	}, nil
}

// MaxChars returns the configured window size.
func (c *Chunker) MaxChars() int { return c.maxChars }

// OverlapChars returns the configured overlap.
func (c *Chunker) OverlapChars() int { return c.overlapChars }

// Chunk splits text into ordered chunks. Empty input yields an empty slice.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	windows := c.pack(c.splitter.Split(text))
	chunks := make([]string, len(windows))
	for i, w := range windows {
		chunks[i] = strings.Join(w.sentences, " ")
	}
	return chunks
}

// window is a chunk before joining. The first carried sentences repeat the
// tail of the previous window.
type window struct {
	sentences []string
	carried   int
}

// buffer tracks the sentences of the open window and their joined length.
type buffer struct {
	sentences []string
	lengths   []int
	total     int
	carried   int
}

func (b *buffer) joinedLen() int {
	if len(b.sentences) == 0 {
		return 0
	}
	return b.total + len(b.sentences) - 1
}

// lenWith is the joined length after appending a sentence of n characters.
func (b *buffer) lenWith(n int) int {
	if len(b.sentences) == 0 {
		return n
	}
	return b.joinedLen() + 1 + n
}

func (b *buffer) push(s string, n int) {
	b.sentences = append(b.sentences, s)
	b.lengths = append(b.lengths, n)
	b.total += n
}

func (b *buffer) dropFirst() {
	b.total -= b.lengths[0]
	b.sentences = b.sentences[1:]
	b.lengths = b.lengths[1:]
	b.carried--
}

func (b *buffer) close() window {
	w := window{sentences: append([]string(nil), b.sentences...), carried: b.carried}
	return w
}

// seed returns a buffer holding the longest suffix of b whose joined length
// does not exceed overlap.
func (b *buffer) seed(overlap int) *buffer {
	start := len(b.sentences)
	joined := 0
	for i := len(b.sentences) - 1; i >= 0; i-- {
		next := b.lengths[i]
		if start < len(b.sentences) {
			next += joined + 1
		}
		if next > overlap {
			break
		}
		joined = next
		start = i
	}

	nb := &buffer{}
	for i := start; i < len(b.sentences); i++ {
		nb.push(b.sentences[i], b.lengths[i])
	}
	nb.carried = len(nb.sentences)
	return nb
}

func (c *Chunker) pack(sentences []string) []window {
	var windows []window
	buf := &buffer{}

	for _, s := range sentences {
		n := utf8.RuneCountInString(s)

		if len(buf.sentences) > buf.carried && buf.lenWith(n) > c.maxChars {
			windows = append(windows, buf.close())
			buf = buf.seed(c.overlapChars)
		}

		// Carried sentences give way to new text so a window only exceeds
		// maxChars when it holds a single over-long sentence.
		for buf.carried > 0 && buf.lenWith(n) > c.maxChars {
			buf.dropFirst()
		}

		buf.push(s, n)
	}

	if len(buf.sentences) > buf.carried {
		windows = append(windows, buf.close())
	}

	return windows
}
