package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/persona-relay/internal/config"
	"github.com/zhouzirui/persona-relay/internal/model/chat"
)

// ErrEmptyReply is returned when the model answers without any text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Service encapsulates access to the generative model.
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the chat model from configuration and wraps it.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel)
}

// NewServiceWithModel compiles the conversation chain around an existing model.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chain: runnable}, nil
}

// OpenConversation opens a fresh conversational context. No network call is made.
func (s *Service) OpenConversation(_ context.Context) (chat.Conversation, error) {
	return &Conversation{chain: s.chain}, nil
}

// Conversation is a model context that accumulates its own turn history.
type Conversation struct {
	chain compose.Runnable[map[string]any, *schema.Message]

	mu      sync.Mutex
	history []*schema.Message
}

// Send delivers one turn using the accumulated history and returns the reply.
// History only grows when the model answers successfully.
func (c *Conversation) Send(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	input := map[string]any{
		"history": append([]*schema.Message(nil), c.history...),
		"query":   text,
	}

	response, err := c.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", ErrEmptyReply
	}

	c.history = append(c.history,
		schema.UserMessage(text),
		schema.AssistantMessage(response.Content, nil),
	)

	log.Printf("[ai] generated reply, turns=%d, length=%d", len(c.history)/2, len(response.Content))
	return response.Content, nil
}

// Turns reports how many exchanges the conversation holds.
func (c *Conversation) Turns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history) / 2
}
