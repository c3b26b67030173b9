package chatbot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"campus-assistant/internal/domain"
	"campus-assistant/internal/integrations/openai"
)

type answerOutput struct {
	Answer string `json:"answer"`
}

var answerFormat = openai.JSONSchema("answer", json.RawMessage(`{
	"type":"object",
	"additionalProperties":false,
	"properties":{
		"answer":{"type":"string"}
	},
	"required":["answer"]
}`))

func buildPromptMessages(turn domain.Turn, chunks []string, history []domain.StoredMessage) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: "system", Content: buildPolicyPrompt()},
		{Role: "system", Content: buildCallerPrompt(turn.Context)},
	}
	if len(chunks) > 0 {
		messages = append(messages, domain.ChatMessage{Role: "system", Content: buildKnowledgePrompt(chunks)})
	}
	for _, m := range history {
		if msg, ok := historyToPromptMessage(m); ok {
			messages = append(messages, msg)
		}
	}
	return append(messages, domain.ChatMessage{Role: "user", Content: turn.Message})
}

func buildPolicyPrompt() string {
	return strings.Join([]string{
		"Role:",
		"You are the campus assistant for students and staff.",
		"",
		"Behavior Rules:",
		"1) Answer only the current user message.",
		"2) Prefer the knowledge excerpts when they are relevant and do not invent campus policies.",
		"3) Tailor the answer to the user's role.",
		"4) Keep responses concise and friendly.",
		"5) If the answer is not known, say so and suggest who to contact.",
		"",
		"Output Contract:",
		"Return JSON only with key answer (string) holding the final user-facing answer.",
	}, "\n")
}

func buildCallerPrompt(c domain.EffectiveContext) string {
	name := strings.TrimSpace(c.FullName)
	if name == "" {
		name = "unknown"
	}
	role := strings.TrimSpace(c.Role)
	if role == "" {
		role = "unknown"
	}
	return fmt.Sprintf("Caller:\nName: %s\nRole: %s", name, role)
}

func buildKnowledgePrompt(chunks []string) string {
	var b strings.Builder
	b.WriteString("Knowledge excerpts:")
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, c)
	}
	return b.String()
}

func historyToPromptMessage(m domain.StoredMessage) (domain.ChatMessage, bool) {
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return domain.ChatMessage{}, false
	}
	switch m.Role {
	case domain.MessageRoleUser, domain.MessageRoleAssistant:
		return domain.ChatMessage{Role: m.Role, Content: content}, true
	default:
		return domain.ChatMessage{}, false
	}
}

func parseAnswer(raw string) (string, error) {
	var out answerOutput
	if err := openai.DecodeStructured(raw, &out); err != nil {
		return "", err
	}
	answer := strings.TrimSpace(out.Answer)
	if answer == "" {
		return "", errors.New("chatbot: empty answer")
	}
	return answer, nil
}
