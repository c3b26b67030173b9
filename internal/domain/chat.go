package domain

// ChatMessage is the provider-agnostic chat message shape used by the chatbot,
// agent and orchestration prompts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn is one inbound user message as seen by the orchestration graph and the
// services behind it.
type Turn struct {
	UserID  string
	Message string
	Context EffectiveContext
}

// ChatAnswer is a direct answer produced by the chatbot service.
type ChatAnswer struct {
	Answer  string
	RAGUsed bool
	Chunks  []string
}
