package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"campus-assistant/internal/domain"
	"campus-assistant/internal/integrations/openai"
)

const (
	nodeClassify = "classify"
	nodeChat     = "chat"
	nodeAgent    = "agent"
	nodeEnd      = ""

	maxSteps = 8
)

type LLMClient interface {
	Model(ctx context.Context) (string, error)
	Chat(ctx context.Context, model string, messages []domain.ChatMessage, format *openai.ResponseFormat) (string, error)
}

// ChatResponder answers a message directly.
type ChatResponder interface {
	Respond(ctx context.Context, turn domain.Turn) (domain.ChatAnswer, error)
}

// TaskCreator turns a message into an agent task.
type TaskCreator interface {
	CreateTask(ctx context.Context, turn domain.Turn) (domain.Task, error)
}

type node func(ctx context.Context, s *State) (next string, err error)

// Graph routes each message through intent classification and then to either
// the chatbot or the agent.
type Graph struct {
	llm   LLMClient
	chat  ChatResponder
	tasks TaskCreator
	nodes map[string]node
}

func NewGraph(llm LLMClient, chat ChatResponder, tasks TaskCreator) (*Graph, error) {
	if llm == nil {
		return nil, errors.New("orchestration: llm client must not be nil")
	}
	if chat == nil {
		return nil, errors.New("orchestration: chat responder must not be nil")
	}
	if tasks == nil {
		return nil, errors.New("orchestration: task creator must not be nil")
	}
	g := &Graph{llm: llm, chat: chat, tasks: tasks}
	g.nodes = map[string]node{
		nodeClassify: g.classify,
		nodeChat:     g.respond,
		nodeAgent:    g.createTask,
	}
	return g, nil
}

// Invoke runs the graph to completion and returns its terminal result.
func (g *Graph) Invoke(ctx context.Context, state State) (Result, error) {
	s := state
	next := nodeClassify
	for step := 0; next != nodeEnd; step++ {
		if step >= maxSteps {
			return nil, fmt.Errorf("orchestration: exceeded %d steps", maxSteps)
		}
		run, ok := g.nodes[next]
		if !ok {
			return nil, fmt.Errorf("orchestration: unknown node %q", next)
		}
		name := next
		var err error
		if next, err = run(ctx, &s); err != nil {
			return nil, fmt.Errorf("orchestration: %s: %w", name, err)
		}
	}
	if s.Response == nil {
		return nil, fmt.Errorf("%w: graph finished without a response", ErrMalformedResult)
	}
	return s.Response, nil
}

func (g *Graph) classify(ctx context.Context, s *State) (string, error) {
	intent, err := g.classifyIntent(ctx, s)
	if err != nil {
		return nodeEnd, err
	}
	s.Intent = intent
	if intent == IntentAgent {
		return nodeAgent, nil
	}
	return nodeChat, nil
}

func (g *Graph) respond(ctx context.Context, s *State) (string, error) {
	answer, err := g.chat.Respond(ctx, s.turn())
	if err != nil {
		return nodeEnd, err
	}
	s.Response = ChatAnswer{Answer: answer.Answer, RAGUsed: answer.RAGUsed, Chunks: answer.Chunks}
	return nodeEnd, nil
}

func (g *Graph) createTask(ctx context.Context, s *State) (string, error) {
	task, err := g.tasks.CreateTask(ctx, s.turn())
	if err != nil {
		return nodeEnd, err
	}
	s.TaskCreated = true
	s.Response = TaskCreated{Message: TaskCreatedMessage(task)}
	return nodeEnd, nil
}

// TaskCreatedMessage is the user-facing confirmation for a created task.
func TaskCreatedMessage(task domain.Task) string {
	id := task.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("Task #%s created: %s", id, task.Title)
}

type intentOutput struct {
	Intent string `json:"intent"`
}

var intentFormat = openai.JSONSchema("intent", json.RawMessage(`{
	"type":"object",
	"additionalProperties":false,
	"properties":{
		"intent":{"type":"string","enum":["chat","agent"]}
	},
	"required":["intent"]
}`))

func (g *Graph) classifyIntent(ctx context.Context, s *State) (string, error) {
	model, err := g.llm.Model(ctx)
	if err != nil {
		return "", err
	}
	raw, err := g.llm.Chat(ctx, model, []domain.ChatMessage{
		{Role: "system", Content: classifierPrompt(s.UserContext)},
		{Role: "user", Content: s.Message},
	}, intentFormat)
	if err != nil {
		return "", err
	}

	var out intentOutput
	if err := openai.DecodeStructured(raw, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Intent) == IntentAgent {
		return IntentAgent, nil
	}
	return IntentChat, nil
}

func classifierPrompt(c domain.EffectiveContext) string {
	return strings.Join([]string{
		"You route messages sent to a campus assistant.",
		"Return intent \"agent\" when the user asks for something to be done on their behalf:",
		"scheduling, booking, assigning, filing a request, creating a reminder or any other action that produces a task.",
		"Return intent \"chat\" for questions, explanations, greetings and everything else.",
		fmt.Sprintf("The user's role is %q.", c.Role),
		"Return JSON only with key intent.",
	}, "\n")
}
