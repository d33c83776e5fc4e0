package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/persona-relay/internal/model/persona"
)

const (
	// FallbackAssistant is used when the persona carries no name.
	FallbackAssistant = "an AI assistant"
	// FallbackHuman is the alternative fallback for human-sounding personas.
	FallbackHuman = "a human"
)

// PromptOptions tunes the prime directive template.
type PromptOptions struct {
	FallbackName string // 角色名为空时使用
	MaxWords     int    // >0 时追加字数限制
}

// DefaultPromptOptions returns the assistant fallback without a word cap.
func DefaultPromptOptions() PromptOptions {
	return PromptOptions{FallbackName: FallbackAssistant}
}

// BuildPrimeDirective composes the system-level instruction sent once per
// session. It has no side effects.
func BuildPrimeDirective(p persona.Persona, customInstructions string, opts PromptOptions) string {
	fallback := opts.FallbackName
	if strings.TrimSpace(fallback) == "" {
		fallback = FallbackAssistant
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("You are roleplaying as %s.\n\n", p.DisplayName(fallback)))
	builder.WriteString(fmt.Sprintf("Character traits: %s\n", p.Description))
	builder.WriteString(fmt.Sprintf("Behavior pattern: %s\n\n", p.BehaviorSnapshot))
	builder.WriteString(fmt.Sprintf("Custom instructions: %s\n\n", customInstructions))
	builder.WriteString("Respond to the chat in a natural, conversational way that matches the persona.\n")
	builder.WriteString("Keep responses concise and engaging.")
	if opts.MaxWords > 0 {
		builder.WriteString(fmt.Sprintf(" Answer in less than %d words.", opts.MaxWords))
	}
	return builder.String()
}

// ChatContext wraps a rendered transcript as the turn text sent to the model.
func ChatContext(transcript string) string {
	return "Chat context:\n" + transcript
}
