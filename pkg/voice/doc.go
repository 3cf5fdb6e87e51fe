// Package voice runs one spoken conversation between a user and a bot.
//
// A Session wires three vendor services to a Transport:
//
//	transport audio → STT → transcript aggregation → LLM → sentences → TTS → transport audio
//
// The session owns the conversation context. Final transcripts are
// aggregated until the user stops speaking, appended as a user message and
// answered by a bot turn. A bot turn streams the LLM reply, splits it into
// sentences and synthesises each one as soon as it is complete, so the bot
// starts talking before the reply is finished.
//
// If the user starts speaking while a bot turn is active, the turn is
// cancelled and queued audio is cleared (barge-in). Whatever was already
// spoken is kept as the assistant message.
//
// # Usage
//
//	session, err := voice.NewSession(id, voice.DefaultConfig(), voice.Services{
//		STT: sttService,
//		LLM: llmProvider,
//		TTS: ttsProvider,
//	}, peer, logger)
//	if err != nil {
//		return err
//	}
//	session.AddObserver(rtviProcessor)
//	err = session.Run(ctx)
//
// # Observers
//
// Observers receive an Event for every state change the client cares about:
// speaking indicators, transcriptions, bot text and per-turn metrics.
// Observers are called synchronously from the session goroutines and must
// not block.
package voice
