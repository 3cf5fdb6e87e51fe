package voice_test

import (
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-humphrey/pkg/voice"
)

func TestMetricsCollectorTurn(t *testing.T) {
	m := voice.NewMetricsCollector()

	m.MarkSpeechEnd()
	time.Sleep(2 * time.Millisecond)
	m.MarkTranscript()
	m.MarkFirstToken()
	m.MarkFirstToken()
	m.MarkFirstAudio()
	m.MarkSentence()
	m.IncrementAudioOut()

	cur := m.Current()
	if cur.ASRLatency <= 0 {
		t.Errorf("ASRLatency = %v, want > 0", cur.ASRLatency)
	}
	if cur.LLMFirstToken < cur.ASRLatency {
		t.Errorf("LLMFirstToken %v before ASR %v", cur.LLMFirstToken, cur.ASRLatency)
	}

	done := m.MarkResponseDone()
	if done.TotalLatency < done.TTSFirstAudio {
		t.Errorf("TotalLatency %v < TTSFirstAudio %v", done.TotalLatency, done.TTSFirstAudio)
	}
	if done.Sentences != 1 || done.AudioChunksOut != 1 {
		t.Errorf("counts = %d sentences, %d chunks", done.Sentences, done.AudioChunksOut)
	}
	if m.Turns() != 1 {
		t.Errorf("Turns() = %d, want 1", m.Turns())
	}
	if !m.Current().SpeechEndTime.IsZero() {
		t.Error("current turn not reset")
	}
}

func TestMetricsCollectorTurnStart(t *testing.T) {
	m := voice.NewMetricsCollector()
	m.MarkTurnStart()
	m.MarkFirstToken()
	if m.Current().LLMFirstToken < 0 {
		t.Error("negative latency")
	}
	if m.Current().SpeechEndTime.IsZero() {
		t.Error("MarkTurnStart did not set reference")
	}

	m.Discard()
	if m.Turns() != 0 {
		t.Errorf("Discard archived a turn")
	}
}

func TestMetricsAverage(t *testing.T) {
	m := voice.NewMetricsCollector()
	if avg := m.Average(); avg.TotalLatency != 0 {
		t.Errorf("empty average = %v", avg.TotalLatency)
	}
	for i := 0; i < 3; i++ {
		m.MarkSpeechEnd()
		m.MarkResponseDone()
	}
	if m.Turns() != 3 {
		t.Errorf("Turns() = %d", m.Turns())
	}
}

func TestFormatLatency(t *testing.T) {
	m := voice.Metrics{LLMFirstToken: 250 * time.Millisecond}
	got := m.FormatLatency()
	if !strings.Contains(got, "250ms LLM") {
		t.Errorf("FormatLatency() = %q", got)
	}
	if !strings.Contains(got, "---ms ASR") {
		t.Errorf("FormatLatency() = %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*voice.Config)
		wantErr bool
	}{
		{"defaults", func(*voice.Config) {}, false},
		{"zero sample rate", func(c *voice.Config) { c.InputSampleRate = 0 }, true},
		{"negative aggregation", func(c *voice.Config) { c.AggregationTimeout = -1 }, true},
		{"idle disabled", func(c *voice.Config) { c.IdleTimeout = 0 }, false},
		{"no connect timeout", func(c *voice.Config) { c.ConnectTimeout = 0 }, true},
		{"hot temperature", func(c *voice.Config) { c.LLMTemperature = 2.5 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := voice.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
