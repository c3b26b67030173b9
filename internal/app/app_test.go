package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"campus-assistant/internal/domain"
	"campus-assistant/internal/integrations/openai"
	"campus-assistant/internal/integrations/paramstore"
	"campus-assistant/internal/orchestration"
	"campus-assistant/internal/usecase"
)

type fakeMemory struct {
	profile  *domain.UserProfile
	messages []domain.StoredMessage
	tasks    []domain.Task
}

func (m *fakeMemory) GetUserProfile(_ context.Context, _ string) (*domain.UserProfile, error) {
	return m.profile, nil
}

func (m *fakeMemory) UpdateUserProfile(_ context.Context, _ string, p domain.UserProfile) error {
	m.profile = &p
	return nil
}

func (m *fakeMemory) StoreMessage(_ context.Context, userID, role, content string, metadata domain.MessageMetadata) error {
	m.messages = append(m.messages, domain.StoredMessage{UserID: userID, Role: role, Content: content, Metadata: metadata})
	return nil
}

func (m *fakeMemory) GetHistory(_ context.Context, _ string, _ int) ([]domain.StoredMessage, error) {
	return m.messages, nil
}

func (m *fakeMemory) CreateTask(_ context.Context, task domain.Task) error {
	m.tasks = append(m.tasks, task)
	return nil
}

type fakeParams struct{}

func (fakeParams) GetParameter(_ context.Context, _ string) (string, error) {
	return `{"token":"secret"}`, nil
}

func (fakeParams) GetParametersByPath(_ context.Context, _ string) ([]paramstore.Parameter, error) {
	return []paramstore.Parameter{{Name: "/p/knowledge/library", Value: "The library opens at 8am."}}, nil
}

// scriptedLLM answers the classifier with intent and every other prompt with
// reply.
type scriptedLLM struct {
	intent string
	reply  string
}

func (s *scriptedLLM) Model(_ context.Context) (string, error) { return "gpt-test", nil }

func (s *scriptedLLM) Chat(_ context.Context, _ string, _ []domain.ChatMessage, format *openai.ResponseFormat) (string, error) {
	if format != nil && format.JSONSchema.Name == "intent" {
		raw, _ := json.Marshal(map[string]string{"intent": s.intent})
		return string(raw), nil
	}
	return s.reply, nil
}

type fakePublisher struct {
	published []domain.Task
}

func (p *fakePublisher) Publish(_ context.Context, task domain.Task) error {
	p.published = append(p.published, task)
	return nil
}

func testConfig() Config {
	return Config{StateTable: "t", ParamPrefix: "/p", MaxMessageLength: 100, MaxHistoryItems: 5, KnowledgeTopK: 2}
}

func alice() domain.UserIdentity {
	return domain.UserIdentity{UserID: "alice", Email: "alice@example.edu", Role: "employee", FullName: "Alice Doe"}
}

func TestInitialize_ValidatesCollaborators(t *testing.T) {
	llm := &scriptedLLM{}
	_, err := Initialize(testConfig(), nil, Collaborators{Params: fakeParams{}, LLM: llm})
	require.Error(t, err)
	_, err = Initialize(testConfig(), &fakeMemory{}, Collaborators{LLM: llm})
	require.Error(t, err)
	_, err = Initialize(testConfig(), &fakeMemory{}, Collaborators{Params: fakeParams{}})
	require.Error(t, err)
}

func TestInitialize_ChatPathEndToEnd(t *testing.T) {
	mem := &fakeMemory{}
	deps, err := Initialize(testConfig(), mem, Collaborators{
		Params: fakeParams{},
		LLM:    &scriptedLLM{intent: "chat", reply: `{"answer":"It opens at 8am."}`},
	})
	require.NoError(t, err)
	require.IsType(t, &orchestration.Graph{}, deps.Graph)

	out, err := deps.Chat.Chat(context.Background(), alice(), usecase.ChatInput{Message: "When does the library open?"})
	require.NoError(t, err)
	require.Equal(t, usecase.ChatOutput{
		Status:          usecase.StatusChat,
		Message:         "It opens at 8am.",
		RAGUsed:         true,
		RetrievedChunks: []string{"The library opens at 8am."},
	}, out)
	require.NotNil(t, mem.profile)
	require.Len(t, mem.messages, 2)
	require.Equal(t, domain.MessageRoleUser, mem.messages[0].Role)
	require.Equal(t, domain.MessageRoleAssistant, mem.messages[1].Role)
}

func TestInitialize_AgentPathPublishes(t *testing.T) {
	mem := &fakeMemory{}
	pub := &fakePublisher{}
	deps, err := Initialize(testConfig(), mem, Collaborators{
		Params:    fakeParams{},
		LLM:       &scriptedLLM{intent: "agent", reply: `{"title":"Book room 4B","description":"Friday 10:00"}`},
		Publisher: pub,
	})
	require.NoError(t, err)

	out, err := deps.Chat.Chat(context.Background(), alice(), usecase.ChatInput{
		Message:     "Book room 4B for Friday",
		UserContext: &domain.CallerContext{Role: "manager"},
	})
	require.NoError(t, err)
	require.Equal(t, usecase.StatusAgentTaskCreated, out.Status)
	require.Contains(t, out.Message, "created: Book room 4B")
	require.Equal(t, []string{}, out.RetrievedChunks)
	require.Len(t, mem.tasks, 1)
	require.Equal(t, "manager", mem.tasks[0].RequestedRole)
	require.Equal(t, mem.tasks, pub.published)
}

func TestInitialize_RemoteGraph(t *testing.T) {
	cfg := testConfig()
	cfg.GraphURL = "http://graph.internal/invoke"
	deps, err := Initialize(cfg, &fakeMemory{}, Collaborators{Params: fakeParams{}, LLM: &scriptedLLM{}})
	require.NoError(t, err)
	require.IsType(t, &orchestration.RemoteGraph{}, deps.Graph)
}
