package voice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-humphrey/pkg/llm"
	"github.com/teslashibe/go-humphrey/pkg/tts"
)

// turnResult is reported by a bot turn when it ends.
type turnResult struct {
	id int

	// spoken is the text whose audio reached the transport.
	spoken string

	// speaking is true if audio may still be playing.
	speaking bool

	// complete is true when the reply was fully generated and played.
	complete bool

	err error
}

// runTurn streams one LLM reply and speaks it sentence by sentence.
func (s *Session) runTurn(ctx context.Context, id int, msgs []llm.Message) turnResult {
	out := &speaker{session: s, ctx: ctx}

	err := s.generate(ctx, msgs, out)
	out.finish()

	res := turnResult{id: id, spoken: out.spokenText()}
	if err == nil {
		err = out.drain()
	}
	res.speaking = out.speaking
	if err != nil {
		res.err = err
		return res
	}
	res.complete = true
	return res
}

func (s *Session) generate(ctx context.Context, msgs []llm.Message, out *speaker) error {
	s.emit(Event{Type: EventBotLLMStarted})
	defer s.emit(Event{Type: EventBotLLMStopped})

	stream, err := s.services.LLM.Stream(ctx, &llm.ChatRequest{
		Messages:    msgs,
		Temperature: llm.Float(s.cfg.LLMTemperature),
	})
	if err != nil {
		return fmt.Errorf("voice: language model: %w", err)
	}
	defer stream.Close()

	var split sentenceSplitter
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("voice: language model: %w", err)
		}
		if chunk.Delta != "" {
			s.metrics.MarkFirstToken()
			s.emit(Event{Type: EventBotLLMText, Text: chunk.Delta})
			for _, sentence := range split.Push(chunk.Delta) {
				if err := out.say(sentence); err != nil {
					return err
				}
			}
		}
		if chunk.Done {
			break
		}
	}
	return out.say(split.Flush())
}

// speaker synthesises sentences and tracks when queued audio finishes.
type speaker struct {
	session *Session
	ctx     context.Context

	spoken      []string
	ttsStarted  bool
	speaking    bool
	playbackEnd time.Time
}

func (p *speaker) say(sentence string) error {
	text := speakable(sentence)
	if text == "" {
		return nil
	}
	s := p.session

	if !p.ttsStarted {
		p.ttsStarted = true
		s.emit(Event{Type: EventBotTTSStarted})
	}
	s.emit(Event{Type: EventBotTTSText, Text: text})
	s.metrics.MarkSentence()

	stream, err := s.services.TTS.Stream(p.ctx, text)
	if err != nil {
		if p.ctx.Err() != nil {
			return p.ctx.Err()
		}
		return fmt.Errorf("voice: text-to-speech: %w", err)
	}
	defer stream.Close()

	rate := stream.Format().SampleRate
	written := false
	for {
		chunk, err := stream.Read()
		if err != nil {
			if p.ctx.Err() != nil {
				return p.ctx.Err()
			}
			return fmt.Errorf("voice: text-to-speech: %w", err)
		}
		if chunk == nil {
			return nil
		}
		if len(chunk) == 0 {
			continue
		}
		if err := p.ctx.Err(); err != nil {
			return err
		}

		s.metrics.MarkFirstAudio()
		if !p.speaking {
			p.speaking = true
			s.emit(Event{Type: EventBotStartedSpeaking})
		}
		if err := s.transport.WriteAudio(chunk, rate); err != nil {
			return fmt.Errorf("voice: write audio: %w", err)
		}
		s.metrics.IncrementAudioOut()
		p.queued(tts.EstimateDuration(len(chunk), rate))

		if !written {
			written = true
			p.spoken = append(p.spoken, text)
		}
	}
}

func (p *speaker) queued(d time.Duration) {
	now := time.Now()
	if p.playbackEnd.Before(now) {
		p.playbackEnd = now
	}
	p.playbackEnd = p.playbackEnd.Add(d)
}

func (p *speaker) finish() {
	if p.ttsStarted {
		p.session.emit(Event{Type: EventBotTTSStopped})
	}
}

// drain waits for queued audio to play out.
func (p *speaker) drain() error {
	if !p.speaking {
		return nil
	}
	if wait := time.Until(p.playbackEnd); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-p.ctx.Done():
			return p.ctx.Err()
		}
	}
	p.speaking = false
	p.session.emit(Event{Type: EventBotStoppedSpeaking})
	return nil
}

func (p *speaker) spokenText() string {
	return strings.Join(p.spoken, " ")
}
