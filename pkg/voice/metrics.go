package voice

import (
	"sync"
	"time"
)

// historySize bounds the turns kept for averaging.
const historySize = 100

// Metrics tracks latency at each stage of one bot turn.
// Durations are measured from the moment the user stopped speaking, or
// from the start of the turn when there was no user speech (the greeting).
type Metrics struct {
	SpeechEndTime    time.Time // user stopped speaking, or turn start
	TranscriptTime   time.Time // aggregated transcript committed
	FirstTokenTime   time.Time // first LLM token
	FirstAudioTime   time.Time // first TTS audio
	ResponseDoneTime time.Time // last audio played

	ASRLatency    time.Duration
	LLMFirstToken time.Duration
	TTSFirstAudio time.Duration
	TotalLatency  time.Duration

	AudioChunksIn  int
	AudioChunksOut int
	Sentences      int
}

// MetricsCollector collects latency metrics during a conversation turn.
// It is goroutine-safe.
type MetricsCollector struct {
	mu      sync.Mutex
	current Metrics
	history []Metrics
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{history: make([]Metrics, 0, historySize)}
}

// MarkSpeechEnd records when the user stopped speaking and starts a new turn.
func (m *MetricsCollector) MarkSpeechEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	in := m.current.AudioChunksIn
	m.current = Metrics{SpeechEndTime: time.Now(), AudioChunksIn: in}
}

// MarkTranscript records when the aggregated transcript was committed.
func (m *MetricsCollector) MarkTranscript() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.TranscriptTime = time.Now()
	if !m.current.SpeechEndTime.IsZero() {
		m.current.ASRLatency = m.current.TranscriptTime.Sub(m.current.SpeechEndTime)
	}
}

// MarkTurnStart sets the reference point for a turn that was not preceded
// by user speech.
func (m *MetricsCollector) MarkTurnStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.SpeechEndTime.IsZero() {
		m.current.SpeechEndTime = time.Now()
	}
}

// MarkFirstToken records when the LLM generated its first token.
func (m *MetricsCollector) MarkFirstToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.FirstTokenTime.IsZero() {
		m.current.FirstTokenTime = time.Now()
		if !m.current.SpeechEndTime.IsZero() {
			m.current.LLMFirstToken = m.current.FirstTokenTime.Sub(m.current.SpeechEndTime)
		}
	}
}

// MarkFirstAudio records when the first audio chunk was generated.
func (m *MetricsCollector) MarkFirstAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.FirstAudioTime.IsZero() {
		m.current.FirstAudioTime = time.Now()
		if !m.current.SpeechEndTime.IsZero() {
			m.current.TTSFirstAudio = m.current.FirstAudioTime.Sub(m.current.SpeechEndTime)
		}
	}
}

// MarkSentence counts one synthesised sentence.
func (m *MetricsCollector) MarkSentence() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Sentences++
}

// MarkResponseDone archives the turn and returns its metrics.
func (m *MetricsCollector) MarkResponseDone() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ResponseDoneTime = time.Now()
	if !m.current.SpeechEndTime.IsZero() {
		m.current.TotalLatency = m.current.ResponseDoneTime.Sub(m.current.SpeechEndTime)
	}
	done := m.current
	m.history = append(m.history, done)
	if len(m.history) > historySize {
		m.history = m.history[1:]
	}
	m.current = Metrics{}
	return done
}

// Discard drops the current turn without archiving it.
func (m *MetricsCollector) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{}
}

// IncrementAudioIn increments the count of audio chunks received.
func (m *MetricsCollector) IncrementAudioIn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksIn++
}

// IncrementAudioOut increments the count of audio chunks sent.
func (m *MetricsCollector) IncrementAudioOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksOut++
}

// Current returns the current metrics snapshot.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Turns returns the number of archived turns.
func (m *MetricsCollector) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Average returns average metrics over recent turns.
func (m *MetricsCollector) Average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return Metrics{}
	}

	var avg Metrics
	for _, h := range m.history {
		avg.ASRLatency += h.ASRLatency
		avg.LLMFirstToken += h.LLMFirstToken
		avg.TTSFirstAudio += h.TTSFirstAudio
		avg.TotalLatency += h.TotalLatency
	}

	n := time.Duration(len(m.history))
	avg.ASRLatency /= n
	avg.LLMFirstToken /= n
	avg.TTSFirstAudio /= n
	avg.TotalLatency /= n

	return avg
}

// FormatLatency returns a formatted string of latencies.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.ASRLatency) + " ASR | " +
		formatDuration(m.LLMFirstToken) + " LLM | " +
		formatDuration(m.TTSFirstAudio) + " TTS | " +
		formatDuration(m.TotalLatency) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
