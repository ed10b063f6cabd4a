package corpus

import (
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// DefaultMaxChunkWords bounds the size of a chunk.
const DefaultMaxChunkWords = 450

// Chunk splits text into sentences and packs them greedily into chunks of at
// most maxWords words. A sentence that would overflow the current chunk starts
// a new one; a single sentence longer than maxWords becomes its own chunk.
// Blank input yields nil.
func Chunk(text string, maxWords int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxWords <= 0 {
		maxWords = DefaultMaxChunkWords
	}

	var chunks []string
	var current []string
	words := 0

	for _, sentence := range splitIntoSentences(text) {
		n := len(strings.Fields(sentence))
		if words+n <= maxWords {
			current = append(current, sentence)
			words += n
			continue
		}
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
		}
		current = []string{sentence}
		words = n
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// WordCount returns the number of whitespace-separated words in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// englishTokenizer is loaded once; the Punkt parameters ship with the package.
var englishTokenizer = sync.OnceValues(func() (*sentences.DefaultSentenceTokenizer, error) {
	return english.NewSentenceTokenizer(nil)
})

// splitIntoSentences splits text with the Punkt English model, which keeps
// abbreviations such as "Dr." and "U.S." inside their sentence.
func splitIntoSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokenizer, err := englishTokenizer()
	if err != nil {
		return []string{strings.TrimSpace(text)}
	}

	var out []string
	for _, s := range tokenizer.Tokenize(text) {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}
