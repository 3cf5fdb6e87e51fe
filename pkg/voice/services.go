package voice

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-humphrey/pkg/llm"
	"github.com/teslashibe/go-humphrey/pkg/stt"
	"github.com/teslashibe/go-humphrey/pkg/tts"
)

// Services are the vendor integrations a session talks to.
// They are shared by every session of a bot.
type Services struct {
	STT stt.Service
	LLM llm.Provider
	TTS tts.Provider
}

// Validate reports a missing service.
func (s Services) Validate() error {
	switch {
	case s.STT == nil:
		return errors.New("voice: no speech-to-text service")
	case s.LLM == nil:
		return errors.New("voice: no language model")
	case s.TTS == nil:
		return errors.New("voice: no text-to-speech service")
	}
	return nil
}

// Health checks all three vendors concurrently and returns the first
// failure.
func (s Services) Health(ctx context.Context) error {
	if err := s.Validate(); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.STT.Health(ctx); err != nil {
			return fmt.Errorf("speech-to-text: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.LLM.Health(ctx); err != nil {
			return fmt.Errorf("language model: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.TTS.Health(ctx); err != nil {
			return fmt.Errorf("text-to-speech: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close releases the LLM and TTS clients.
func (s Services) Close() error {
	var errs []error
	if s.LLM != nil {
		errs = append(errs, s.LLM.Close())
	}
	if s.TTS != nil {
		errs = append(errs, s.TTS.Close())
	}
	return errors.Join(errs...)
}

// Transport carries audio between the session and the client.
type Transport interface {
	// Audio delivers inbound mono PCM16 at the session's input rate.
	Audio() <-chan []byte

	// WriteAudio queues mono PCM16 at sampleRate for playback. The
	// transport plays queued audio in real time.
	WriteAudio(pcm16 []byte, sampleRate int) error

	// ClearAudio drops audio queued but not yet played.
	ClearAudio()

	// Connected is closed once media can flow.
	Connected() <-chan struct{}

	// Done is closed when the connection ends.
	Done() <-chan struct{}
}
