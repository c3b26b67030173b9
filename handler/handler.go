package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"campus-assistant/internal/auth"
	"campus-assistant/internal/domain"
	"campus-assistant/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type ChatUseCase interface {
	Chat(ctx context.Context, identity domain.UserIdentity, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, headers map[string]string) (domain.UserIdentity, error)
}

type Handler struct {
	chat   ChatUseCase
	auth   Authenticator
	logger *slog.Logger
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

type chatRequest struct {
	Message     *string         `json:"message"`
	UserContext json.RawMessage `json:"user_context"`
}

type chatResponse struct {
	Status          string   `json:"status"`
	Message         string   `json:"message"`
	RAGUsed         bool     `json:"rag_used"`
	RetrievedChunks []string `json:"retrieved_chunks"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewHandler(chat ChatUseCase, authenticator Authenticator, opts ...Option) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if authenticator == nil {
		return nil, errors.New("handler: authenticator must not be nil")
	}
	h := &Handler{chat: chat, auth: authenticator, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle serves POST / behind API Gateway.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.logger.With("correlation_id", correlationID)

	switch event.HTTPMethod {
	case http.MethodOptions:
		return response(http.StatusNoContent, correlationID, "", map[string]string{"Allow": "OPTIONS, POST"}), nil
	case http.MethodPost:
	default:
		return h.fail(log, correlationID, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "method_not_allowed"}, http.StatusMethodNotAllowed), nil
	}

	identity, err := h.auth.Authenticate(ctx, event.Headers)
	if err != nil {
		return h.fail(log, correlationID, authError(err), 0), nil
	}

	in, err := decodeRequest(event)
	if err != nil {
		return h.fail(log, correlationID, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err}, 0), nil
	}

	out, err := h.chat.Chat(ctx, identity, in)
	if err != nil {
		return h.fail(log, correlationID, err, 0), nil
	}

	chunks := out.RetrievedChunks
	if chunks == nil {
		chunks = []string{}
	}
	body, err := json.Marshal(chatResponse{
		Status:          out.Status,
		Message:         out.Message,
		RAGUsed:         out.RAGUsed,
		RetrievedChunks: chunks,
	})
	if err != nil {
		return h.fail(log, correlationID, err, 0), nil
	}
	log.Info("chat request served", "status", http.StatusOK, "result", out.Status, "rag_used", out.RAGUsed)
	return response(http.StatusOK, correlationID, string(body), nil), nil
}

func decodeRequest(event events.APIGatewayProxyRequest) (usecase.ChatInput, error) {
	raw := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return usecase.ChatInput{}, fmt.Errorf("decode base64 body: %w", err)
		}
		raw = decoded
	}

	var req chatRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&req); err != nil {
		return usecase.ChatInput{}, fmt.Errorf("decode body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return usecase.ChatInput{}, errors.New("decode body: trailing data")
	}
	if req.Message == nil {
		return usecase.ChatInput{}, errors.New("message is required")
	}

	in := usecase.ChatInput{Message: *req.Message}
	if len(req.UserContext) > 0 && !bytes.Equal(bytes.TrimSpace(req.UserContext), []byte("null")) {
		var caller domain.CallerContext
		if err := json.Unmarshal(req.UserContext, &caller); err != nil {
			return usecase.ChatInput{}, err
		}
		in.UserContext = &caller
	}
	return in, nil
}

func authError(err error) *usecase.Error {
	switch {
	case errors.Is(err, auth.ErrNoSubject):
		return &usecase.Error{Code: usecase.ErrorForbidden, Reason: "token_without_subject", Err: err}
	case errors.Is(err, auth.ErrMissingToken):
		return &usecase.Error{Code: usecase.ErrorUnauthenticated, Reason: "missing_token", Err: err}
	case errors.Is(err, auth.ErrInvalidToken):
		return &usecase.Error{Code: usecase.ErrorUnauthenticated, Reason: "invalid_token", Err: err}
	default:
		return &usecase.Error{Code: usecase.ErrorInternal, Reason: "auth_config_error", Err: err}
	}
}

// fail writes the error body. A non-zero status overrides the code's default.
func (h *Handler) fail(log *slog.Logger, correlationID string, err error, status int) events.APIGatewayProxyResponse {
	code, reason := usecase.ErrorInternal, "unexpected_error"
	var usecaseErr *usecase.Error
	if errors.As(err, &usecaseErr) {
		code, reason = usecaseErr.Code, usecaseErr.Reason
	}
	if status == 0 {
		status = statusFor(code)
	}

	if status >= http.StatusInternalServerError {
		log.Error("chat request failed", "status", status, "code", code, "reason", reason, "err", err)
	} else {
		log.Warn("chat request rejected", "status", status, "code", code, "reason", reason, "err", err)
	}

	body, _ := json.Marshal(errorResponse{Error: string(code), Message: messageFor(code, reason, status)})
	return response(status, correlationID, string(body), nil)
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorUnauthenticated:
		return http.StatusUnauthorized
	case usecase.ErrorForbidden:
		return http.StatusForbidden
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream, usecase.ErrorMalformedResult:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var clientMessages = map[string]string{
	"method_not_allowed":    "only POST is supported",
	"invalid_body":          "request body must be a JSON object with a string message and an optional user_context object",
	"message_too_long":      "message is too long",
	"missing_token":         "missing bearer token",
	"invalid_token":         "invalid or expired token",
	"token_without_subject": "token does not identify a user",
	"missing_user_id":       "token does not identify a user",
}

func messageFor(code usecase.ErrorCode, reason string, status int) string {
	switch {
	case code == usecase.ErrorRateLimited:
		return "too many requests, try again later"
	case status >= http.StatusInternalServerError:
		return "the assistant is temporarily unavailable"
	}
	if msg, ok := clientMessages[reason]; ok {
		return msg
	}
	return "invalid request"
}

func response(status int, correlationID, body string, extra map[string]string) events.APIGatewayProxyResponse {
	headers := map[string]string{
		"Content-Type":    "application/json",
		correlationHeader: correlationID,
	}
	for k, v := range extra {
		headers[k] = v
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: body}
}

// headerValue looks up name case-insensitively. An exact key match wins;
// among other spellings the lowest key in byte order is used.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	key, found := "", false
	for k := range headers {
		if strings.EqualFold(k, name) && (!found || k < key) {
			key, found = k, true
		}
	}
	if !found {
		return ""
	}
	return strings.TrimSpace(headers[key])
}
