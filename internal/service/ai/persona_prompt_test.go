package ai

import (
	"strings"
	"testing"

	"github.com/zhouzirui/persona-relay/internal/model/persona"
)

func TestBuildPrimeDirectiveInterpolatesPersona(t *testing.T) {
	p := persona.Persona{
		ID:               "p1",
		Name:             "Nova",
		Description:      "curious astronomer",
		BehaviorSnapshot: "asks follow-up questions",
	}

	got := BuildPrimeDirective(p, "never mention the weather", DefaultPromptOptions())

	for _, want := range []string{
		"You are roleplaying as Nova.",
		"Character traits: curious astronomer",
		"Behavior pattern: asks follow-up questions",
		"Custom instructions: never mention the weather",
		"Keep responses concise and engaging.",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected prompt to contain %q, got:\n%s", want, got)
		}
	}
	if strings.Contains(got, "words.") {
		t.Fatalf("expected no word cap by default, got:\n%s", got)
	}
}

func TestBuildPrimeDirectiveFallbackName(t *testing.T) {
	got := BuildPrimeDirective(persona.Persona{}, "", PromptOptions{})
	if !strings.Contains(got, "You are roleplaying as an AI assistant.") {
		t.Fatalf("expected assistant fallback, got:\n%s", got)
	}

	got = BuildPrimeDirective(persona.Persona{Name: "  "}, "", PromptOptions{FallbackName: FallbackHuman})
	if !strings.Contains(got, "You are roleplaying as a human.") {
		t.Fatalf("expected human fallback, got:\n%s", got)
	}
}

func TestBuildPrimeDirectiveWordCap(t *testing.T) {
	got := BuildPrimeDirective(persona.Persona{Name: "Nova"}, "", PromptOptions{MaxWords: 15})
	if !strings.HasSuffix(got, "Answer in less than 15 words.") {
		t.Fatalf("expected word cap suffix, got:\n%s", got)
	}
}

func TestBuildPrimeDirectiveIsDeterministic(t *testing.T) {
	p := persona.Persona{Name: "Nova", Description: "d"}
	if BuildPrimeDirective(p, "x", DefaultPromptOptions()) != BuildPrimeDirective(p, "x", DefaultPromptOptions()) {
		t.Fatal("expected identical output for identical input")
	}
}

func TestChatContext(t *testing.T) {
	if got := ChatContext("User: hi"); got != "Chat context:\nUser: hi" {
		t.Fatalf("unexpected chat context %q", got)
	}
}
