package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"campus-assistant/internal/domain"
	"campus-assistant/internal/integrations/openai"
)

const (
	maxTitleLength       = 120
	maxDescriptionLength = 2000
)

type LLMClient interface {
	Model(ctx context.Context) (string, error)
	Chat(ctx context.Context, model string, messages []domain.ChatMessage, format *openai.ResponseFormat) (string, error)
}

// Store persists tasks and the assistant confirmation message.
type Store interface {
	CreateTask(ctx context.Context, task domain.Task) error
	StoreMessage(ctx context.Context, userID, role, content string, metadata domain.MessageMetadata) error
}

// Publisher announces created tasks to downstream workers.
type Publisher interface {
	Publish(ctx context.Context, task domain.Task) error
}

// Service turns action requests into persisted tasks.
type Service struct {
	llm       LLMClient
	store     Store
	publisher Publisher
	now       func() time.Time
}

type Option func(*Service)

// WithPublisher publishes every created task. Without it tasks are only stored.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(llm LLMClient, store Store, opts ...Option) (*Service, error) {
	if llm == nil {
		return nil, errors.New("agent: llm client must not be nil")
	}
	if store == nil {
		return nil, errors.New("agent: store must not be nil")
	}
	s := &Service{llm: llm, store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateTask drafts a task from turn, persists it as pending and confirms it
// to the user.
func (s *Service) CreateTask(ctx context.Context, turn domain.Turn) (domain.Task, error) {
	d, err := s.draft(ctx, turn)
	if err != nil {
		return domain.Task{}, err
	}

	now := s.now().UTC()
	task := domain.Task{
		ID:            newTaskID(),
		UserID:        turn.UserID,
		Title:         d.Title,
		Description:   d.Description,
		Status:        domain.TaskStatusPending,
		RequestedRole: turn.Context.Role,
		CreatedAt:     now.Format(time.RFC3339),
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("agent: persist task: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, task); err != nil {
			return domain.Task{}, fmt.Errorf("agent: publish task: %w", err)
		}
	}

	confirmation := fmt.Sprintf("Created task %q. It is pending and will be picked up shortly.", task.Title)
	if err := s.store.StoreMessage(ctx, turn.UserID, domain.MessageRoleAssistant, confirmation, domain.MessageMetadata{
		Timestamp: now.Format(time.RFC3339Nano),
		Role:      turn.Context.Role,
	}); err != nil {
		return domain.Task{}, fmt.Errorf("agent: store confirmation: %w", err)
	}
	return task, nil
}

type draftOutput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

var draftFormat = openai.JSONSchema("task_draft", json.RawMessage(`{
	"type":"object",
	"additionalProperties":false,
	"properties":{
		"title":{"type":"string"},
		"description":{"type":"string"}
	},
	"required":["title","description"]
}`))

func (s *Service) draft(ctx context.Context, turn domain.Turn) (draftOutput, error) {
	model, err := s.llm.Model(ctx)
	if err != nil {
		return draftOutput{}, err
	}
	raw, err := s.llm.Chat(ctx, model, []domain.ChatMessage{
		{Role: "system", Content: draftPrompt(turn.Context)},
		{Role: "user", Content: turn.Message},
	}, draftFormat)
	if err != nil {
		return draftOutput{}, err
	}

	var out draftOutput
	if err := openai.DecodeStructured(raw, &out); err != nil {
		return draftOutput{}, err
	}
	out.Title = truncate(strings.Join(strings.Fields(out.Title), " "), maxTitleLength)
	out.Description = truncate(strings.TrimSpace(out.Description), maxDescriptionLength)
	if out.Title == "" {
		return draftOutput{}, errors.New("agent: task draft has an empty title")
	}
	return out, nil
}

func draftPrompt(c domain.EffectiveContext) string {
	return strings.Join([]string{
		"You turn a campus user's request into a task for the operations team.",
		"Write a short imperative title and a description with every detail the team needs:",
		"what, where, when and who it is for.",
		fmt.Sprintf("The request comes from %s acting as %q.", displayName(c), c.Role),
		"Return JSON only with keys title and description.",
	}, "\n")
}

func displayName(c domain.EffectiveContext) string {
	if name := strings.TrimSpace(c.FullName); name != "" {
		return name
	}
	if c.Email != "" {
		return c.Email
	}
	return c.UserID
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

var newTaskID = func() string {
	return uuid.NewString()
}
