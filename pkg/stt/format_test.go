package stt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teslashibe/go-humphrey/pkg/stt"
)

func TestFormatSpeakers(t *testing.T) {
	tests := []struct {
		name         string
		words        []stt.Word
		format       string
		wantText     string
		wantSpeakers []string
	}{
		{
			name:     "empty",
			wantText: "",
		},
		{
			name: "single speaker with punctuation",
			words: []stt.Word{
				{Content: "Hello", Speaker: "S1"},
				{Content: "there", Speaker: "S1"},
				{Content: ".", Speaker: "S1", AttachesPrevious: true},
			},
			format:       stt.DefaultSpeakerFormat,
			wantText:     "<S1>Hello there.</S1>",
			wantSpeakers: []string{"S1"},
		},
		{
			name: "two speakers",
			words: []stt.Word{
				{Content: "Hi", Speaker: "S1"},
				{Content: ",", Speaker: "S1", AttachesPrevious: true},
				{Content: "Humphrey", Speaker: "S1"},
				{Content: "Hello", Speaker: "S2"},
				{Content: "again", Speaker: "S1"},
			},
			format:       stt.DefaultSpeakerFormat,
			wantText:     "<S1>Hi, Humphrey</S1> <S2>Hello</S2> <S1>again</S1>",
			wantSpeakers: []string{"S1", "S2"},
		},
		{
			name: "no format leaves plain text",
			words: []stt.Word{
				{Content: "plain", Speaker: "S1"},
				{Content: "text", Speaker: "S1"},
				{Content: "?", Speaker: "S1", AttachesPrevious: true},
			},
			wantText:     "plain text?",
			wantSpeakers: []string{"S1"},
		},
		{
			name: "punctuation does not switch speaker",
			words: []stt.Word{
				{Content: "Yes", Speaker: "S2"},
				{Content: ".", Speaker: "S1", AttachesPrevious: true},
			},
			format:       stt.DefaultSpeakerFormat,
			wantText:     "<S2>Yes.</S2>",
			wantSpeakers: []string{"S2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, speakers := stt.FormatSpeakers(tt.words, tt.format)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantSpeakers, speakers)
		})
	}
}
