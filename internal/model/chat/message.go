package chat

import (
	"encoding/json"
	"strings"
)

// SenderUser marks transcript entries written by the local user.
const SenderUser = "user"

// Message is one transcript entry supplied by the client.
type Message struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// Label returns the speaker label used when rendering the transcript.
func (m Message) Label() string {
	if m.Sender == SenderUser {
		return "User"
	}
	return "Other person"
}

// RenderTranscript 将消息列表渲染为 "User: ..." / "Other person: ..." 行，保持原有顺序。
func RenderTranscript(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, msg.Label()+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}

// DecodeMessages accepts either a JSON array of messages or a JSON string that
// itself holds a serialized array. Anything unparseable yields an empty
// transcript rather than an error.
func DecodeMessages(raw json.RawMessage) []Message {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []Message{}
	}

	if strings.HasPrefix(trimmed, `"`) {
		var serialized string
		if err := json.Unmarshal([]byte(trimmed), &serialized); err != nil {
			return []Message{}
		}
		trimmed = strings.TrimSpace(serialized)
	}

	var messages []Message
	if err := json.Unmarshal([]byte(trimmed), &messages); err != nil {
		return []Message{}
	}
	if messages == nil {
		return []Message{}
	}
	return messages
}
