package app

import (
	"context"
	"errors"
	"fmt"

	"campus-assistant/internal/agent"
	"campus-assistant/internal/auth"
	"campus-assistant/internal/chatbot"
	"campus-assistant/internal/domain"
	"campus-assistant/internal/integrations/openai"
	"campus-assistant/internal/integrations/paramstore"
	"campus-assistant/internal/orchestration"
	"campus-assistant/internal/usecase"
)

// Memory is everything the chat flow, the chatbot and the agent persist.
// *repository.Client satisfies it.
type Memory interface {
	GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	UpdateUserProfile(ctx context.Context, userID string, profile domain.UserProfile) error
	StoreMessage(ctx context.Context, userID, role, content string, metadata domain.MessageMetadata) error
	GetHistory(ctx context.Context, userID string, limit int) ([]domain.StoredMessage, error)
	CreateTask(ctx context.Context, task domain.Task) error
}

// Params serves secrets, runtime config and knowledge documents.
// *paramstore.Client satisfies it.
type Params interface {
	GetParameter(ctx context.Context, name string) (string, error)
	GetParametersByPath(ctx context.Context, path string) ([]paramstore.Parameter, error)
}

type LLMClient interface {
	Model(ctx context.Context) (string, error)
	Chat(ctx context.Context, model string, messages []domain.ChatMessage, format *openai.ResponseFormat) (string, error)
}

// Collaborators are the external clients Initialize wires together.
// Publisher is optional.
type Collaborators struct {
	Params    Params
	LLM       LLMClient
	Publisher agent.Publisher
}

// Dependencies is the request-serving object graph, built once per process.
type Dependencies struct {
	Memory  Memory
	Chatbot *chatbot.Service
	Agent   *agent.Service
	Graph   usecase.ConversationGraph
	Chat    *usecase.ChatService
	Auth    *auth.Authenticator
}

// Initialize builds the chatbot, agent and orchestration graph from memory and
// returns them with the chat service that serves requests.
func Initialize(cfg Config, memory Memory, c Collaborators) (*Dependencies, error) {
	if memory == nil {
		return nil, errors.New("app: memory must not be nil")
	}
	if c.Params == nil {
		return nil, errors.New("app: params must not be nil")
	}
	if c.LLM == nil {
		return nil, errors.New("app: llm client must not be nil")
	}

	bot, err := chatbot.NewService(c.LLM, memory, c.Params, cfg.ParamPrefix,
		chatbot.WithHistoryItems(cfg.MaxHistoryItems),
		chatbot.WithTopK(cfg.KnowledgeTopK),
	)
	if err != nil {
		return nil, fmt.Errorf("app: chatbot: %w", err)
	}

	var agentOpts []agent.Option
	if c.Publisher != nil {
		agentOpts = append(agentOpts, agent.WithPublisher(c.Publisher))
	}
	taskAgent, err := agent.NewService(c.LLM, memory, agentOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: agent: %w", err)
	}

	var graph usecase.ConversationGraph
	if cfg.GraphURL != "" {
		graph, err = orchestration.NewRemoteGraph(cfg.GraphURL)
	} else {
		graph, err = orchestration.NewGraph(c.LLM, bot, taskAgent)
	}
	if err != nil {
		return nil, fmt.Errorf("app: graph: %w", err)
	}

	chat, err := usecase.NewChatService(memory, graph, usecase.WithMaxMessageLength(cfg.MaxMessageLength))
	if err != nil {
		return nil, fmt.Errorf("app: chat service: %w", err)
	}

	authenticator, err := auth.NewAuthenticator(c.Params, cfg.ParamPrefix)
	if err != nil {
		return nil, fmt.Errorf("app: authenticator: %w", err)
	}

	return &Dependencies{
		Memory:  memory,
		Chatbot: bot,
		Agent:   taskAgent,
		Graph:   graph,
		Chat:    chat,
		Auth:    authenticator,
	}, nil
}
