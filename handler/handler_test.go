package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"campus-assistant/internal/auth"
	"campus-assistant/internal/domain"
	"campus-assistant/internal/usecase"
)

type stubUseCase struct {
	out      usecase.ChatOutput
	err      error
	in       usecase.ChatInput
	identity domain.UserIdentity
	called   bool
}

func (s *stubUseCase) Chat(_ context.Context, identity domain.UserIdentity, in usecase.ChatInput) (usecase.ChatOutput, error) {
	s.called = true
	s.identity = identity
	s.in = in
	return s.out, s.err
}

type stubAuth struct {
	identity domain.UserIdentity
	err      error
}

func (s *stubAuth) Authenticate(_ context.Context, _ map[string]string) (domain.UserIdentity, error) {
	return s.identity, s.err
}

func alice() *stubAuth {
	return &stubAuth{identity: domain.UserIdentity{UserID: "alice", Email: "alice@example.edu", Role: "employee", FullName: "Alice Doe"}}
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/",
		Headers:    map[string]string{"Content-Type": "application/json", "Authorization": "Bearer token"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, uc ChatUseCase, a Authenticator) *Handler {
	t.Helper()
	h, err := NewHandler(uc, a, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(nil, alice())
	require.Error(t, err)

	_, err = NewHandler(&stubUseCase{}, nil)
	require.Error(t, err)
}

func TestHandle_ChatPath(t *testing.T) {
	uc := &stubUseCase{out: usecase.ChatOutput{Status: usecase.StatusChat, Message: "hi", RAGUsed: true, RetrievedChunks: []string{"c1"}}}
	h := newTestHandler(t, uc, alice())

	resp, err := h.Handle(context.Background(), makeEvent(`{"message":"hello","user_context":{"role":"manager","building":"B2"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	require.Equal(t, "alice", uc.identity.UserID)
	require.Equal(t, "hello", uc.in.Message)
	require.Equal(t, "manager", uc.in.UserContext.Role)
	require.Equal(t, "B2", uc.in.UserContext.Extras["building"])

	require.JSONEq(t, `{"status":"chat","message":"hi","rag_used":true,"retrieved_chunks":["c1"]}`, resp.Body)
}

func TestHandle_AgentPathAlwaysHasChunkArray(t *testing.T) {
	uc := &stubUseCase{out: usecase.ChatOutput{Status: usecase.StatusAgentTaskCreated, Message: "Task #42 created"}}
	h := newTestHandler(t, uc, alice())

	resp, err := h.Handle(context.Background(), makeEvent(`{"message":"book room 4B","user_context":null}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, uc.in.UserContext)
	require.JSONEq(t, `{"status":"agent_task_created","message":"Task #42 created","rag_used":false,"retrieved_chunks":[]}`, resp.Body)
}

func TestHandle_Base64Body(t *testing.T) {
	uc := &stubUseCase{out: usecase.ChatOutput{Status: usecase.StatusChat, Message: "ok"}}
	h := newTestHandler(t, uc, alice())

	event := makeEvent(base64.StdEncoding.EncodeToString([]byte(`{"message":"hello"}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello", uc.in.Message)
}

func TestHandle_InvalidBodies(t *testing.T) {
	bodies := map[string]string{
		"not json":            `not-json`,
		"missing message":     `{"user_context":{}}`,
		"non-string message":  `{"message":42}`,
		"array user_context":  `{"message":"hi","user_context":["role"]}`,
		"string user_context": `{"message":"hi","user_context":"manager"}`,
		"trailing data":       `{"message":"hi"} {}`,
		"empty":               ``,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			uc := &stubUseCase{}
			h := newTestHandler(t, uc, alice())

			resp, err := h.Handle(context.Background(), makeEvent(body))
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.False(t, uc.called)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
			require.NotEmpty(t, out.Message)
		})
	}
}

func TestHandle_IgnoresExtraFields(t *testing.T) {
	uc := &stubUseCase{out: usecase.ChatOutput{Status: usecase.StatusChat, Message: "ok"}}
	h := newTestHandler(t, uc, alice())

	resp, err := h.Handle(context.Background(), makeEvent(`{"message":"hello","session_id":"s1","user_context":{"role":"manager"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello", uc.in.Message)
	require.Equal(t, "manager", uc.in.UserContext.Role)
}

func TestHandle_PassesMessageThroughUnchanged(t *testing.T) {
	for _, message := range []string{"", "   ", "  hi  "} {
		t.Run(fmt.Sprintf("%q", message), func(t *testing.T) {
			uc := &stubUseCase{out: usecase.ChatOutput{Status: usecase.StatusChat, Message: "ok"}}
			h := newTestHandler(t, uc, alice())

			body, err := json.Marshal(map[string]string{"message": message})
			require.NoError(t, err)
			resp, err := h.Handle(context.Background(), makeEvent(string(body)))
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, message, uc.in.Message)
		})
	}
}

func TestHandle_Methods(t *testing.T) {
	uc := &stubUseCase{}
	h := newTestHandler(t, uc, alice())

	event := makeEvent("")
	event.HTTPMethod = http.MethodOptions
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "OPTIONS, POST", resp.Headers["Allow"])

	event.HTTPMethod = http.MethodGet
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.False(t, uc.called)
}

func TestHandle_AuthFailuresShortCircuit(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   usecase.ErrorCode
	}{
		{name: "missing token", err: auth.ErrMissingToken, status: http.StatusUnauthorized, code: usecase.ErrorUnauthenticated},
		{name: "invalid token", err: fmt.Errorf("%w: token is expired", auth.ErrInvalidToken), status: http.StatusUnauthorized, code: usecase.ErrorUnauthenticated},
		{name: "no subject", err: auth.ErrNoSubject, status: http.StatusForbidden, code: usecase.ErrorForbidden},
		{name: "secret unavailable", err: errors.New("auth: load signing secret: ssm down"), status: http.StatusInternalServerError, code: usecase.ErrorInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{}
			h := newTestHandler(t, uc, &stubAuth{err: tc.err})

			resp, err := h.Handle(context.Background(), makeEvent(`{"message":"hello"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			require.False(t, uc.called)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, string(tc.code), out.Error)
		})
	}
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "message_too_long"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "forbidden", err: &usecase.Error{Code: usecase.ErrorForbidden, Reason: "missing_user_id"}, status: http.StatusForbidden, code: string(usecase.ErrorForbidden)},
		{name: "rate limited", err: &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "orchestration_rate_limited"}, status: http.StatusTooManyRequests, code: string(usecase.ErrorRateLimited)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "orchestration_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream)},
		{name: "malformed", err: &usecase.Error{Code: usecase.ErrorMalformedResult, Reason: "malformed_orchestration_result"}, status: http.StatusBadGateway, code: string(usecase.ErrorMalformedResult)},
		{name: "not initialized", err: &usecase.Error{Code: usecase.ErrorNotInitialized, Reason: "dependencies_not_initialized"}, status: http.StatusInternalServerError, code: string(usecase.ErrorNotInitialized)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "message_store_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubUseCase{err: tc.err}, alice())

			resp, err := h.Handle(context.Background(), makeEvent(`{"message":"hello"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			if tc.status >= http.StatusInternalServerError {
				require.Equal(t, "the assistant is temporarily unavailable", out.Message)
			}
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	uc := &stubUseCase{out: usecase.ChatOutput{Status: usecase.StatusChat, Message: "ok"}}
	h := newTestHandler(t, uc, alice())

	event := makeEvent(`{"message":"hello"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])

	resp, err = h.Handle(context.Background(), makeEvent(`{"message":""}`))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHeaderValue_DuplicateSpellings(t *testing.T) {
	headers := map[string]string{"X-Correlation-Id": "canonical", "x-correlation-id": "lower", "X-CORRELATION-ID": "upper"}
	fallback := map[string]string{"x-correlation-id": "lower", "X-CORRELATION-ID": "upper"}
	for i := 0; i < 50; i++ {
		require.Equal(t, "canonical", headerValue(headers, correlationHeader))
		require.Equal(t, "upper", headerValue(fallback, correlationHeader))
	}
	require.Empty(t, headerValue(map[string]string{"Content-Type": "application/json"}, correlationHeader))
}
