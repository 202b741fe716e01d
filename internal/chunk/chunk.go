// Package chunk splits extracted document text into bounded-size,
// order-preserving word segments suitable for embedding. Splitting is purely
// whitespace-based: the chunker never breaks a word and never overlaps
// consecutive chunks, so the space-joined concatenation of all chunks
// reproduces the whitespace-normalized input.
package chunk

import (
	"iter"
	"strings"
)

// DefaultMaxWords is the maximum number of words per chunk when the caller
// passes a non-positive limit.
const DefaultMaxWords = 2000

// Split returns a lazy, restartable sequence of chunk strings. Each chunk
// contains at most maxWords whitespace-delimited words in their original
// order; the final chunk may be shorter. Empty or whitespace-only input
// yields an empty sequence.
func Split(text string, maxWords int) iter.Seq[string] {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	return func(yield func(string) bool) {
		words := strings.Fields(text)
		for i := 0; i < len(words); i += maxWords {
			end := min(i+maxWords, len(words))
			if !yield(strings.Join(words[i:end], " ")) {
				return
			}
		}
	}
}

// Count returns the number of chunks Split would produce for the given text
// and limit, without materialising them.
func Count(text string, maxWords int) int {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	n := len(strings.Fields(text))
	if n == 0 {
		return 0
	}
	return (n + maxWords - 1) / maxWords
}
