// Package llm provides a streaming chat interface for language models.
//
// Example usage:
//
//	provider, _ := llm.NewOpenAI(
//	    llm.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    llm.WithModel("gpt-4o"),
//	)
//	defer provider.Close()
//
//	stream, _ := provider.Stream(ctx, &llm.ChatRequest{
//	    Messages: []llm.Message{llm.NewUserMessage("Hello!")},
//	})
//	defer stream.Close()
//	for {
//	    chunk, err := stream.Recv()
//	    if err != nil || chunk.Done {
//	        break
//	    }
//	    fmt.Print(chunk.Delta)
//	}
package llm

import "context"

// Provider generates chat completions.
type Provider interface {
	// Stream starts a streaming completion for the conversation so far.
	Stream(ctx context.Context, req *ChatRequest) (Stream, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Stream is a streaming completion.
type Stream interface {
	// Recv returns the next chunk. The final chunk has Done set; after
	// that Recv keeps returning a Done chunk.
	Recv() (*StreamChunk, error)

	// Close stops the stream and releases resources.
	Close() error
}

// StreamChunk is a piece of a streaming response.
type StreamChunk struct {
	// Delta is the incremental text content.
	Delta string

	// FinishReason indicates why generation stopped (stop, length).
	FinishReason string

	// Done is true when the stream is complete.
	Done bool
}

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length. Zero means provider default.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0). Nil uses the configured
	// default.
	Temperature *float64
}

// Float returns a pointer to v, for ChatRequest.Temperature.
func Float(v float64) *float64 {
	return &v
}
