package orchestration

import (
	"encoding/json"

	"campus-assistant/internal/domain"
)

const (
	IntentChat  = "chat"
	IntentAgent = "agent"
)

// State is the per-invocation graph state. Intent, Response and TaskCreated
// start empty and are filled in by the graph nodes.
type State struct {
	UserID      string
	Message     string
	UserContext domain.EffectiveContext
	Intent      string
	Response    Result
	TaskCreated bool
}

// NewState returns the initial state for one inbound message.
func NewState(userID, message string, userContext domain.EffectiveContext) State {
	return State{UserID: userID, Message: message, UserContext: userContext}
}

func (s State) turn() domain.Turn {
	return domain.Turn{UserID: s.UserID, Message: s.Message, Context: s.UserContext}
}

type wireState struct {
	UserID      string                  `json:"user_id"`
	Message     string                  `json:"message"`
	UserContext domain.EffectiveContext `json:"user_context"`
	Intent      *string                 `json:"intent"`
	Response    *string                 `json:"response"`
	TaskCreated *bool                   `json:"task_created"`
}

// MarshalJSON encodes the initial state document sent to a remote graph;
// unset intent, response and task_created are sent as null.
func (s State) MarshalJSON() ([]byte, error) {
	w := wireState{UserID: s.UserID, Message: s.Message, UserContext: s.UserContext}
	if s.Intent != "" {
		w.Intent = &s.Intent
	}
	if s.TaskCreated {
		w.TaskCreated = &s.TaskCreated
	}
	return json.Marshal(w)
}
