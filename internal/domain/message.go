package domain

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// MessageMetadata travels with every stored conversation message.
type MessageMetadata struct {
	Timestamp string
	Role      string
	RAGUsed   bool
}

// StoredMessage is a single append-only entry of a user's conversation history.
type StoredMessage struct {
	UserID   string
	Role     string
	Content  string
	Metadata MessageMetadata
}
