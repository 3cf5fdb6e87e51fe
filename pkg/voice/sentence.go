package voice

import (
	"regexp"
	"strings"
	"unicode"
)

// abbreviations never end a sentence.
var abbreviations = map[string]bool{
	"mr.": true, "mrs.": true, "ms.": true, "dr.": true, "st.": true,
	"prof.": true, "sr.": true, "jr.": true, "vs.": true, "etc.": true,
	"e.g.": true, "i.e.": true,
}

// numberAbbreviations only abbreviate when a digit follows, as in "No. 5".
var numberAbbreviations = map[string]bool{
	"no.": true, "nos.": true,
}

// sentenceSplitter cuts streamed LLM text into sentences for TTS.
type sentenceSplitter struct {
	buf strings.Builder
}

// Push appends delta and returns any sentences it completed.
func (s *sentenceSplitter) Push(delta string) []string {
	s.buf.WriteString(delta)
	text := s.buf.String()

	var out []string
	start := 0
	runes := []rune(text)
	offset := 0
	for i, r := range runes {
		size := len(string(r))
		end := offset + size
		offset = end
		if !endsSentence(r) || i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			if r != '\n' {
				continue
			}
		}
		candidate := strings.TrimSpace(text[start:end])
		if candidate == "" || isAbbreviation(candidate) {
			continue
		}
		if numberAbbreviations[lastWord(candidate)] {
			next, ok := nextNonSpace(runes[i+1:])
			if !ok || unicode.IsDigit(next) {
				continue
			}
		}
		out = append(out, candidate)
		start = end
	}

	rest := text[start:]
	s.buf.Reset()
	s.buf.WriteString(rest)
	return out
}

// Flush returns whatever text remains.
func (s *sentenceSplitter) Flush() string {
	rest := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return rest
}

func endsSentence(r rune) bool {
	switch r {
	case '.', '!', '?', ';', '…', '。':
		return true
	}
	return false
}

func isAbbreviation(text string) bool {
	return abbreviations[lastWord(text)]
}

func lastWord(text string) string {
	fields := strings.Fields(text)
	return strings.ToLower(fields[len(fields)-1])
}

// nextNonSpace reports the first non-space rune, if it has arrived yet.
func nextNonSpace(runes []rune) (rune, bool) {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return r, true
		}
	}
	return 0, false
}

var (
	markupTags = regexp.MustCompile(`</?[A-Za-z0-9_]+/?>`)
	emphasis   = regexp.MustCompile("[*_`#]+")
	spaces     = regexp.MustCompile(`\s+`)
)

// speakable strips markup the TTS vendor would read out loud.
func speakable(text string) string {
	text = markupTags.ReplaceAllString(text, "")
	text = emphasis.ReplaceAllString(text, "")
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}
