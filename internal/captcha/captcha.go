package captcha

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
)

// The captcha is transcription friction, not a security control: the answer
// is rendered to the same client that must solve it. It only has to be
// annoying for a naive bot, so the alphabet favors legibility.
const glyphAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789#@&%"

// Palette of display colors assigned per glyph.
var palette = []string{"#e53935", "#1e88e5", "#43a047", "#fb8c00", "#8e24aa", "#00897b"}

// Glyph is one character of the challenge with its display color.
type Glyph struct {
	Char  string `json:"char"`
	Color string `json:"color"`
}

// Challenge is one generated captcha. Input is compared case-sensitively
// against the exact concatenation of the glyph characters; no trimming, no
// partial credit.
type Challenge struct {
	ID     string  `json:"id"`
	Glyphs []Glyph `json:"glyphs"`
}

// Text returns the expected answer.
func (c *Challenge) Text() string {
	out := make([]byte, 0, len(c.Glyphs))
	for _, g := range c.Glyphs {
		out = append(out, g.Char...)
	}
	return string(out)
}

// Matches reports exact, case-sensitive equality with the challenge text.
func (c *Challenge) Matches(input string) bool {
	return input == c.Text()
}

// Registry holds the currently outstanding challenges. A challenge is
// single-use: both a successful submit and a rejected one consume it, so a
// solved captcha can never be replayed.
type Registry struct {
	length int
	mu     sync.Mutex
	live   map[string]*Challenge
}

func NewRegistry(length int) *Registry {
	if length <= 0 {
		length = 5
	}
	return &Registry{
		length: length,
		live:   make(map[string]*Challenge),
	}
}

// Generate creates a new challenge and registers it.
func (r *Registry) Generate() (*Challenge, error) {
	glyphs := make([]Glyph, r.length)
	for i := range glyphs {
		ci, err := rand.Int(rand.Reader, big.NewInt(int64(len(glyphAlphabet))))
		if err != nil {
			return nil, fmt.Errorf("failed to generate captcha glyph: %w", err)
		}
		pi, err := rand.Int(rand.Reader, big.NewInt(int64(len(palette))))
		if err != nil {
			return nil, fmt.Errorf("failed to pick glyph color: %w", err)
		}
		glyphs[i] = Glyph{
			Char:  string(glyphAlphabet[ci.Int64()]),
			Color: palette[pi.Int64()],
		}
	}

	ch := &Challenge{
		ID:     uuid.New().String(),
		Glyphs: glyphs,
	}

	r.mu.Lock()
	r.live[ch.ID] = ch
	r.mu.Unlock()

	return ch, nil
}

// Consume removes the challenge and reports whether the input matched it.
// An unknown or already-consumed id counts as a mismatch.
func (r *Registry) Consume(id, input string) bool {
	r.mu.Lock()
	ch, ok := r.live[id]
	if ok {
		delete(r.live, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	return ch.Matches(input)
}

// Outstanding returns the number of live challenges.
func (r *Registry) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
