// Package examples holds the runnable Humphrey bots. They share the
// persona, speech recognition and language model, and differ in which
// vendor speaks the replies.
package examples

import (
	"strings"

	"github.com/teslashibe/go-humphrey/internal/config"
	"github.com/teslashibe/go-humphrey/internal/runner"
	"github.com/teslashibe/go-humphrey/pkg/bot"
	"github.com/teslashibe/go-humphrey/pkg/llm"
	"github.com/teslashibe/go-humphrey/pkg/stt"
	"github.com/teslashibe/go-humphrey/pkg/tts"
	"github.com/teslashibe/go-humphrey/pkg/voice"
)

// Persona settings shared by every example.
const (
	Greeting      = "Say a short hello to the user."
	Temperature   = 0.75
	SpeakerFormat = "<{speaker_id}>{text}</{speaker_id}>"
)

// SystemPrompt introduces Humphrey to the language model.
var SystemPrompt = strings.Join([]string{
	"You are a helpful and witty British assistant called Humphrey.",
	"Your goal is to demonstrate your capabilities in a succinct way.",
	"Your output will be spoken aloud, so avoid special characters that can't easily be spoken, such as emojis or bullet points.",
	"Always include punctuation in your responses.",
	"Give very short replies - do not give longer replies unless strictly necessary.",
	"Respond to what the user said in a concise, funny, creative and helpful way.",
	"Use `<Sn/>` tags to identify different speakers - do not use tags in your replies.",
}, " ")

// humphrey is the part every example shares: Speechmatics listens and
// OpenAI thinks.
type humphrey struct {
	OpenAI       config.OpenAI
	Speechmatics config.Speechmatics
}

func (h *humphrey) sections() []config.Section {
	return []config.Section{&h.OpenAI, &h.Speechmatics}
}

func (h *humphrey) voiceConfig(env runner.Env) voice.Config {
	cfg := voice.DefaultConfig()
	cfg.SystemPrompt = SystemPrompt
	cfg.Greeting = Greeting
	cfg.LLMTemperature = Temperature
	cfg.IdleTimeout = env.Server.IdleTimeout
	return cfg
}

func (h *humphrey) recognizer(env runner.Env, sampleRate int) (*stt.Speechmatics, error) {
	opts := []stt.Option{
		stt.WithAPIKey(h.Speechmatics.APIKey),
		stt.WithURL(h.Speechmatics.RTURL),
		stt.WithLanguage(h.Speechmatics.Language),
		stt.WithOperatingPoint(h.Speechmatics.OperatingPoint),
		stt.WithSampleRate(sampleRate),
		stt.WithMaxDelay(h.Speechmatics.MaxDelay),
		stt.WithEndOfUtteranceSilence(h.Speechmatics.EndOfUtteranceSilence),
		stt.WithDiarization(true),
		stt.WithSpeakerFormat(SpeakerFormat),
		stt.WithLogger(env.Logger),
	}
	if env.NetDial != nil {
		opts = append(opts, stt.WithNetDial(env.NetDial))
	}
	return stt.NewSpeechmatics(opts...)
}

func (h *humphrey) model(env runner.Env) (*llm.OpenAI, error) {
	return llm.NewOpenAI(
		llm.WithAPIKey(h.OpenAI.APIKey),
		llm.WithBaseURL(h.OpenAI.BaseURL),
		llm.WithModel(h.OpenAI.Model),
		llm.WithTemperature(Temperature),
		llm.WithHTTPClient(env.HTTPClient),
		llm.WithLogger(env.Logger),
	)
}

// bot assembles the shared services around the given synthesiser.
func (h *humphrey) bot(name string, env runner.Env, synth tts.Provider) (bot.Bot, error) {
	cfg := h.voiceConfig(env)

	recognizer, err := h.recognizer(env, cfg.InputSampleRate)
	if err != nil {
		return bot.Bot{}, err
	}
	model, err := h.model(env)
	if err != nil {
		return bot.Bot{}, err
	}

	b := bot.Bot{
		Name:  name,
		Voice: cfg,
		Services: voice.Services{
			STT: recognizer,
			LLM: model,
			TTS: synth,
		},
	}
	return b, b.Validate()
}
