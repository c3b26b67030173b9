package orchestration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResult reports a graph result that matches neither result shape.
var ErrMalformedResult = errors.New("orchestration: malformed result")

// Result is what one graph invocation produces: either TaskCreated or ChatAnswer.
type Result interface {
	isResult()
}

// TaskCreated reports that the agent path created a task.
type TaskCreated struct {
	Message string
}

// ChatAnswer is a direct answer from the chat path.
type ChatAnswer struct {
	Answer  string
	RAGUsed bool
	Chunks  []string
}

func (TaskCreated) isResult() {}
func (ChatAnswer) isResult()  {}

type wireResult struct {
	TaskCreated json.RawMessage `json:"task_created"`
	Response    json.RawMessage `json:"response"`
}

type wireChatAnswer struct {
	Answer  *string   `json:"answer"`
	RAGUsed *bool     `json:"rag_used"`
	Chunks  *[]string `json:"chunks"`
}

// DecodeResult decodes a `{task_created, response}` document into a Result.
// A truthy task_created requires a string response; otherwise the response
// must be an object carrying answer, rag_used and chunks.
func DecodeResult(raw []byte) (Result, error) {
	var env wireResult
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	if truthy(env.TaskCreated) {
		var msg string
		if err := json.Unmarshal(env.Response, &msg); err != nil || isNull(env.Response) {
			return nil, fmt.Errorf("%w: task response is not a string", ErrMalformedResult)
		}
		return TaskCreated{Message: msg}, nil
	}

	var chat wireChatAnswer
	if isNull(env.Response) {
		return nil, fmt.Errorf("%w: missing chat response", ErrMalformedResult)
	}
	if err := json.Unmarshal(env.Response, &chat); err != nil {
		return nil, fmt.Errorf("%w: chat response: %v", ErrMalformedResult, err)
	}
	switch {
	case chat.Answer == nil:
		return nil, fmt.Errorf("%w: chat response missing answer", ErrMalformedResult)
	case chat.RAGUsed == nil:
		return nil, fmt.Errorf("%w: chat response missing rag_used", ErrMalformedResult)
	case chat.Chunks == nil:
		return nil, fmt.Errorf("%w: chat response missing chunks", ErrMalformedResult)
	}
	return ChatAnswer{Answer: *chat.Answer, RAGUsed: *chat.RAGUsed, Chunks: *chat.Chunks}, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// truthy follows the usual JSON truthiness: false, null, 0, "" and empty
// containers are false.
func truthy(raw json.RawMessage) bool {
	if isNull(raw) {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return false
	}
}
