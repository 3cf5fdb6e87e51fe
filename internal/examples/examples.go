package examples

import (
	"context"

	"github.com/teslashibe/go-humphrey/internal/config"
	"github.com/teslashibe/go-humphrey/internal/runner"
	"github.com/teslashibe/go-humphrey/pkg/bot"
	"github.com/teslashibe/go-humphrey/pkg/tts"
)

// Humphrey speaks with Speechmatics TTS. It needs SPEECHMATICS_API_KEY
// and OPENAI_API_KEY.
type Humphrey struct {
	humphrey
}

func (h *Humphrey) Name() string { return "humphrey" }

func (h *Humphrey) Description() string {
	return "Speechmatics STT, OpenAI LLM and Speechmatics TTS"
}

func (h *Humphrey) Sections() []config.Section { return h.sections() }

func (h *Humphrey) Build(_ context.Context, env runner.Env) (bot.Bot, error) {
	synth, err := tts.NewSpeechmatics(
		tts.WithAPIKey(h.Speechmatics.APIKey),
		tts.WithBaseURL(h.Speechmatics.TTSURL),
		tts.WithVoice(h.Speechmatics.TTSVoice),
		tts.WithHTTPClient(env.HTTPClient),
		tts.WithLogger(env.Logger),
	)
	if err != nil {
		return bot.Bot{}, err
	}
	return h.bot(h.Name(), env, synth)
}

// HumphreyElevenLabs speaks with ElevenLabs. It additionally needs
// ELEVENLABS_API_KEY.
type HumphreyElevenLabs struct {
	humphrey
	ElevenLabs config.ElevenLabs
}

func (h *HumphreyElevenLabs) Name() string { return "humphrey-elevenlabs" }

func (h *HumphreyElevenLabs) Description() string {
	return "Speechmatics STT with speaker diarization, OpenAI LLM and ElevenLabs TTS"
}

func (h *HumphreyElevenLabs) Sections() []config.Section {
	return append(h.sections(), &h.ElevenLabs)
}

func (h *HumphreyElevenLabs) Build(_ context.Context, env runner.Env) (bot.Bot, error) {
	opts := []tts.Option{
		tts.WithAPIKey(h.ElevenLabs.APIKey),
		tts.WithVoice(h.ElevenLabs.VoiceID),
		tts.WithModel(h.ElevenLabs.Model),
		tts.WithHTTPClient(env.HTTPClient),
		tts.WithLogger(env.Logger),
	}

	var (
		synth tts.Provider
		err   error
	)
	switch h.ElevenLabs.Transport {
	case config.ElevenLabsHTTP:
		synth, err = tts.NewElevenLabs(opts...)
	default:
		if env.NetDial != nil {
			opts = append(opts, tts.WithNetDial(env.NetDial))
		}
		synth, err = tts.NewElevenLabsWS(opts...)
	}
	if err != nil {
		return bot.Bot{}, err
	}
	return h.bot(h.Name(), env, synth)
}

// HumphreyGoogle speaks with Cloud Text-to-Speech. It additionally needs
// GOOGLE_API_KEY.
type HumphreyGoogle struct {
	humphrey
	Google config.Google
}

func (h *HumphreyGoogle) Name() string { return "humphrey-google" }

func (h *HumphreyGoogle) Description() string {
	return "Speechmatics STT, OpenAI LLM and Google Cloud TTS"
}

func (h *HumphreyGoogle) Sections() []config.Section {
	return append(h.sections(), &h.Google)
}

// Build does not route Google through SOCKS_PROXY: the client library
// ignores the API key once a custom HTTP client is supplied.
func (h *HumphreyGoogle) Build(ctx context.Context, env runner.Env) (bot.Bot, error) {
	synth, err := tts.NewGoogle(ctx,
		tts.WithAPIKey(h.Google.APIKey),
		tts.WithVoice(h.Google.Voice),
		tts.WithLanguageCode(h.Google.LanguageCode),
		tts.WithLogger(env.Logger),
	)
	if err != nil {
		return bot.Bot{}, err
	}
	return h.bot(h.Name(), env, synth)
}

var (
	_ runner.Example = (*Humphrey)(nil)
	_ runner.Example = (*HumphreyElevenLabs)(nil)
	_ runner.Example = (*HumphreyGoogle)(nil)
)
