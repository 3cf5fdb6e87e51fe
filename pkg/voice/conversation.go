package voice

import (
	"sync"

	"github.com/teslashibe/go-humphrey/pkg/llm"
)

// Conversation is the ordered message history sent to the LLM.
// It is safe for concurrent use.
type Conversation struct {
	mu       sync.RWMutex
	messages []llm.Message
}

// NewConversation starts a history with an optional system prompt.
func NewConversation(systemPrompt string) *Conversation {
	c := &Conversation{}
	if systemPrompt != "" {
		c.messages = append(c.messages, llm.NewSystemMessage(systemPrompt))
	}
	return c
}

// Append adds messages to the end of the history.
func (c *Conversation) Append(msgs ...llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []llm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]llm.Message(nil), c.messages...)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Last returns the most recent message and false if the history is empty.
func (c *Conversation) Last() (llm.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return llm.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}
