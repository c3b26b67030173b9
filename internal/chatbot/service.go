package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"campus-assistant/internal/domain"
	"campus-assistant/internal/integrations/openai"
	"campus-assistant/internal/integrations/paramstore"
)

const (
	defaultHistoryItems = 20
	defaultTopK         = 3
)

type LLMClient interface {
	Model(ctx context.Context) (string, error)
	Chat(ctx context.Context, model string, messages []domain.ChatMessage, format *openai.ResponseFormat) (string, error)
}

// Memory is the slice of the memory store the chatbot needs.
type Memory interface {
	GetHistory(ctx context.Context, userID string, limit int) ([]domain.StoredMessage, error)
	StoreMessage(ctx context.Context, userID, role, content string, metadata domain.MessageMetadata) error
}

// KnowledgeSource lists the knowledge documents stored under a path.
type KnowledgeSource interface {
	GetParametersByPath(ctx context.Context, path string) ([]paramstore.Parameter, error)
}

// Service answers chat messages, grounding them in the knowledge base when
// relevant excerpts exist.
type Service struct {
	llm           LLMClient
	memory        Memory
	knowledge     KnowledgeSource
	knowledgePath string
	historyItems  int
	topK          int
	now           func() time.Time

	cacheMu     sync.RWMutex
	cacheLoaded bool
	chunks      []string
}

type Option func(*Service)

func WithHistoryItems(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyItems = n
		}
	}
}

func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(llm LLMClient, memory Memory, knowledge KnowledgeSource, paramPrefix string, opts ...Option) (*Service, error) {
	if llm == nil {
		return nil, errors.New("chatbot: llm client must not be nil")
	}
	if memory == nil {
		return nil, errors.New("chatbot: memory must not be nil")
	}
	if knowledge == nil {
		return nil, errors.New("chatbot: knowledge source must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("chatbot: parameter prefix must not be empty")
	}
	s := &Service{
		llm:           llm,
		memory:        memory,
		knowledge:     knowledge,
		knowledgePath: paramPrefix + "/knowledge",
		historyItems:  defaultHistoryItems,
		topK:          defaultTopK,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Respond answers turn and stores the reply as an assistant message.
func (s *Service) Respond(ctx context.Context, turn domain.Turn) (domain.ChatAnswer, error) {
	if err := s.ensureKnowledge(ctx); err != nil {
		return domain.ChatAnswer{}, err
	}
	chunks := rank(turn.Message, s.knowledgeChunks(), s.topK)

	history, err := s.recentHistory(ctx, turn)
	if err != nil {
		return domain.ChatAnswer{}, err
	}

	model, err := s.llm.Model(ctx)
	if err != nil {
		return domain.ChatAnswer{}, err
	}
	raw, err := s.llm.Chat(ctx, model, buildPromptMessages(turn, chunks, history), answerFormat)
	if err != nil {
		return domain.ChatAnswer{}, err
	}
	answer, err := parseAnswer(raw)
	if err != nil {
		return domain.ChatAnswer{}, err
	}

	ragUsed := len(chunks) > 0
	if err := s.memory.StoreMessage(ctx, turn.UserID, domain.MessageRoleAssistant, answer, domain.MessageMetadata{
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
		Role:      turn.Context.Role,
		RAGUsed:   ragUsed,
	}); err != nil {
		return domain.ChatAnswer{}, fmt.Errorf("chatbot: store answer: %w", err)
	}

	if chunks == nil {
		chunks = []string{}
	}
	return domain.ChatAnswer{Answer: answer, RAGUsed: ragUsed, Chunks: chunks}, nil
}

// recentHistory returns the window before the current message. The inbound
// message is already stored, so a trailing copy of it is dropped.
func (s *Service) recentHistory(ctx context.Context, turn domain.Turn) ([]domain.StoredMessage, error) {
	history, err := s.memory.GetHistory(ctx, turn.UserID, s.historyItems+1)
	if err != nil {
		return nil, fmt.Errorf("chatbot: load history: %w", err)
	}
	if n := len(history); n > 0 {
		last := history[n-1]
		if last.Role == domain.MessageRoleUser && last.Content == turn.Message {
			history = history[:n-1]
		}
	}
	if len(history) > s.historyItems {
		history = history[len(history)-s.historyItems:]
	}
	return history, nil
}

func (s *Service) knowledgeChunks() []string {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.chunks
}

func (s *Service) ensureKnowledge(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	params, err := s.knowledge.GetParametersByPath(ctx, s.knowledgePath)
	if err != nil {
		return fmt.Errorf("chatbot: load knowledge: %w", err)
	}
	var chunks []string
	for _, p := range params {
		chunks = append(chunks, splitChunks(p.Value)...)
	}
	s.chunks = chunks
	s.cacheLoaded = true
	return nil
}
