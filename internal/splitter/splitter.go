// File path: internal/splitter/splitter.go
package splitter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var paragraphPattern = regexp.MustCompile(`\n\s*\n`)

// terminal punctuation recognised as a sentence boundary, Latin and CJK forms.
const sentenceTerminals = ".!?。！？；;"

// Splitter cuts raw text into chunks bounded by a rune budget. Boundaries are
// chosen by a cascade: paragraph packing first, sentence packing for oversized
// paragraphs, and fixed-width rune slices as the last resort. A second pass
// injects overlap from neighbouring chunks, so final chunk lengths may exceed
// the configured size by up to twice the overlap.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

// New builds a Splitter. A non-positive size falls back to DefaultChunkSize.
// An overlap that is negative or not strictly smaller than the size is clamped
// to a quarter of the size; this coercion is silent and documented rather than
// an error so misconfigured callers still get usable chunks.
func New(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// ChunkSize reports the configured chunk budget in runes.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap reports the effective overlap after clamping.
func (s *Splitter) ChunkOverlap() int { return s.chunkOverlap }

// SplitText splits text into ordered chunks. It satisfies the langchaingo
// textsplitter.TextSplitter contract; the error result is always nil for this
// implementation.
func (s *Splitter) SplitText(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(text) <= s.chunkSize {
		return []string{text}, nil
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen == 0 {
			return
		}
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		current.Reset()
		currentLen = 0
	}

	for _, paragraph := range splitParagraphs(text) {
		pLen := utf8.RuneCountInString(paragraph)
		switch {
		case pLen > s.chunkSize:
			flush()
			chunks = append(chunks, s.splitLargeParagraph(paragraph)...)
		case currentLen == 0:
			current.WriteString(paragraph)
			currentLen = pLen
		case currentLen+pLen+2 <= s.chunkSize:
			current.WriteString("\n\n")
			current.WriteString(paragraph)
			currentLen += pLen + 2
		default:
			flush()
			current.WriteString(paragraph)
			currentLen = pLen
		}
	}
	flush()

	if s.chunkOverlap > 0 {
		chunks = addOverlap(chunks, s.chunkOverlap)
	}

	out := chunks[:0]
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) != "" {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func splitParagraphs(text string) []string {
	parts := paragraphPattern.Split(text, -1)
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

// splitLargeParagraph handles a single paragraph that exceeds the chunk
// budget: sentences are packed greedily, and a sentence that alone exceeds the
// budget is sliced into fixed-width rune windows. The slice step is always the
// full chunk size, so this path terminates in O(len/chunkSize) chunks.
func (s *Splitter) splitLargeParagraph(paragraph string) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen == 0 {
			return
		}
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		current.Reset()
		currentLen = 0
	}

	for _, sentence := range splitSentences(paragraph) {
		sLen := utf8.RuneCountInString(sentence)
		switch {
		case sLen > s.chunkSize:
			flush()
			runes := []rune(sentence)
			for start := 0; start < len(runes); start += s.chunkSize {
				end := start + s.chunkSize
				if end > len(runes) {
					end = len(runes)
				}
				chunks = append(chunks, string(runes[start:end]))
			}
		case currentLen == 0:
			current.WriteString(sentence)
			currentLen = sLen
		case currentLen+sLen+1 <= s.chunkSize:
			current.WriteString(" ")
			current.WriteString(sentence)
			currentLen += sLen + 1
		default:
			flush()
			current.WriteString(sentence)
			currentLen = sLen
		}
	}
	flush()
	return chunks
}

// splitSentences cuts text at terminal punctuation followed by whitespace (or
// end of text). The punctuation stays attached to its sentence.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !strings.ContainsRune(sentenceTerminals, runes[i]) {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}
	if start < len(runes) {
		if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
			sentences = append(sentences, tail)
		}
	}
	return sentences
}

// addOverlap prefixes every chunk except the first with the tail of its
// predecessor and suffixes every chunk except the last with the head of its
// successor. Neighbour text is taken from the pre-overlap chunk list so the
// injected context never compounds.
func addOverlap(chunks []string, overlap int) []string {
	if len(chunks) <= 1 {
		return chunks
	}
	out := make([]string, len(chunks))
	for i, chunk := range chunks {
		var b strings.Builder
		if i > 0 {
			b.WriteString(tailRunes(chunks[i-1], overlap))
			b.WriteString("\n\n")
		}
		b.WriteString(chunk)
		if i < len(chunks)-1 {
			b.WriteString("\n\n")
			b.WriteString(headRunes(chunks[i+1], overlap))
		}
		out[i] = b.String()
	}
	return out
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func headRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
