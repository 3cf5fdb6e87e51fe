package stt

import (
	"strings"

	"github.com/samber/lo"
)

// Word is one recognised token.
type Word struct {
	Content string
	Speaker string
	Start   float64
	End     float64

	// AttachesPrevious joins the token to the previous one without a space,
	// as for punctuation.
	AttachesPrevious bool
}

// FormatSpeakers joins words into text. When format is non-empty, runs of
// words from the same speaker are wrapped using format with {speaker_id}
// and {text} substituted. It also returns the speakers in order of first
// appearance.
func FormatSpeakers(words []Word, format string) (string, []string) {
	if len(words) == 0 {
		return "", nil
	}

	type run struct {
		speaker string
		text    strings.Builder
	}
	var runs []*run

	for _, w := range words {
		if w.Content == "" {
			continue
		}
		var cur *run
		if len(runs) > 0 {
			cur = runs[len(runs)-1]
		}
		// punctuation stays with the run it follows
		if cur == nil || (!w.AttachesPrevious && w.Speaker != cur.speaker) {
			cur = &run{speaker: w.Speaker}
			runs = append(runs, cur)
		}
		if cur.text.Len() > 0 && !w.AttachesPrevious {
			cur.text.WriteByte(' ')
		}
		cur.text.WriteString(w.Content)
	}

	speakers := lo.Uniq(lo.FilterMap(runs, func(r *run, _ int) (string, bool) {
		return r.speaker, r.speaker != ""
	}))

	parts := lo.Map(runs, func(r *run, _ int) string {
		if format == "" || r.speaker == "" {
			return r.text.String()
		}
		return strings.NewReplacer("{speaker_id}", r.speaker, "{text}", r.text.String()).Replace(format)
	})
	return strings.Join(parts, " "), speakers
}
