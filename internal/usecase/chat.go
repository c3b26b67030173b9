package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"campus-assistant/internal/domain"
	"campus-assistant/internal/orchestration"
)

const (
	defaultMaxMessage = 4000

	StatusChat             = "chat"
	StatusAgentTaskCreated = "agent_task_created"
)

// MemoryPort is the profile and message persistence the chat flow needs.
type MemoryPort interface {
	GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	UpdateUserProfile(ctx context.Context, userID string, profile domain.UserProfile) error
	StoreMessage(ctx context.Context, userID, role, content string, metadata domain.MessageMetadata) error
}

// ConversationGraph is the orchestration entry point.
type ConversationGraph interface {
	Invoke(ctx context.Context, state orchestration.State) (orchestration.Result, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ChatService runs one chat request: profile bootstrap, context merge, message
// persistence, then orchestration. A zero ChatService rejects every call with
// ErrorNotInitialized before touching any collaborator.
type ChatService struct {
	memory        MemoryPort
	graph         ConversationGraph
	maxMessageLen int
	now           func() time.Time
}

type ChatInput struct {
	Message     string
	UserContext *domain.CallerContext
}

type ChatOutput struct {
	Status          string
	Message         string
	RAGUsed         bool
	RetrievedChunks []string
}

type Option func(*ChatService)

func WithMaxMessageLength(n int) Option {
	return func(s *ChatService) {
		if n > 0 {
			s.maxMessageLen = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ChatService) {
		s.now = now
	}
}

func NewChatService(memory MemoryPort, graph ConversationGraph, opts ...Option) (*ChatService, error) {
	if memory == nil {
		return nil, errors.New("usecase: memory must not be nil")
	}
	if graph == nil {
		return nil, errors.New("usecase: conversation graph must not be nil")
	}
	s := &ChatService{
		memory:        memory,
		graph:         graph,
		maxMessageLen: defaultMaxMessage,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ChatService) Chat(ctx context.Context, identity domain.UserIdentity, in ChatInput) (ChatOutput, error) {
	if s == nil || s.memory == nil || s.graph == nil {
		return ChatOutput{}, newError(ErrorNotInitialized, "dependencies_not_initialized", nil)
	}
	if strings.TrimSpace(identity.UserID) == "" {
		return ChatOutput{}, newError(ErrorForbidden, "missing_user_id", nil)
	}
	message := in.Message
	if len(message) > s.maxMessageLen {
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	if err := s.ensureProfile(ctx, identity); err != nil {
		return ChatOutput{}, err
	}

	effective := domain.MergeContext(in.UserContext, identity)

	if err := s.memory.StoreMessage(ctx, identity.UserID, domain.MessageRoleUser, message, domain.MessageMetadata{
		Timestamp: s.clock().UTC().Format(time.RFC3339Nano),
		Role:      identity.Role,
	}); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "message_store_error", err)
	}

	result, err := s.graph.Invoke(ctx, orchestration.NewState(identity.UserID, message, effective))
	if err != nil {
		return ChatOutput{}, orchestrationError(err)
	}
	return shapeResult(result)
}

// ensureProfile creates the profile on first contact. Existing profiles are
// never updated here.
func (s *ChatService) ensureProfile(ctx context.Context, identity domain.UserIdentity) error {
	profile, err := s.memory.GetUserProfile(ctx, identity.UserID)
	if err != nil {
		return newError(ErrorInternal, "profile_read_error", err)
	}
	if profile != nil {
		return nil
	}
	err = s.memory.UpdateUserProfile(ctx, identity.UserID, domain.UserProfile{
		UserID:    identity.UserID,
		Email:     identity.Email,
		Role:      identity.Role,
		FullName:  identity.FullName,
		CreatedAt: s.clock().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return newError(ErrorInternal, "profile_write_error", err)
	}
	return nil
}

func (s *ChatService) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func shapeResult(result orchestration.Result) (ChatOutput, error) {
	switch r := result.(type) {
	case orchestration.TaskCreated:
		return ChatOutput{Status: StatusAgentTaskCreated, Message: r.Message, RetrievedChunks: []string{}}, nil
	case orchestration.ChatAnswer:
		chunks := r.Chunks
		if chunks == nil {
			chunks = []string{}
		}
		return ChatOutput{Status: StatusChat, Message: r.Answer, RAGUsed: r.RAGUsed, RetrievedChunks: chunks}, nil
	default:
		return ChatOutput{}, newError(ErrorMalformedResult, "unknown_orchestration_result", nil)
	}
}

func orchestrationError(err error) *Error {
	if errors.Is(err, orchestration.ErrMalformedResult) {
		return newError(ErrorMalformedResult, "malformed_orchestration_result", err)
	}
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return newError(ErrorRateLimited, "orchestration_rate_limited", err)
	}
	return newError(ErrorUpstream, "orchestration_error", err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
