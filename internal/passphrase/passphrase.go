// Package passphrase mints the human-memorable passphrases described
// in spec.md §4.1: N hyphen-joined words drawn from an embedded word
// list via a cryptographic RNG.
package passphrase

import (
	petname "github.com/dustinkirkland/golang-petname"

	"github.com/nudgexfer/nudge/internal/nudgeerr"
)

// maxRetries bounds how many times Generate will re-roll a collision
// before giving up (§4.1: "retries on collision up to a small bound").
const maxRetries = 16

// DefaultWordCount is the word count the relay uses for S2X_RP (§4.3).
const DefaultWordCount = 3

// Generator mints passphrases of a fixed word count.
type Generator struct {
	words int
}

// New returns a Generator that mints words-word passphrases. A
// words <= 0 generator always produces the empty passphrase.
func New(words int) *Generator {
	return &Generator{words: words}
}

// Generate mints a passphrase for which taken reports false, retrying
// on collision up to maxRetries times. taken may be nil if the caller
// has no live set to consult (e.g. unit tests). Returns
// nudgeerr.ErrPassphraseGeneration once the retry budget is exhausted.
func (g *Generator) Generate(taken func(string) bool) (string, error) {
	if g.words <= 0 {
		return "", nil
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		candidate := petname.Generate(g.words, "-")
		if taken == nil || !taken(candidate) {
			return candidate, nil
		}
	}
	return "", nudgeerr.ErrPassphraseGeneration
}
