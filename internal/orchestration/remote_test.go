package orchestration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRemoteGraph_EmptyURL(t *testing.T) {
	_, err := NewRemoteGraph(" ")
	require.Error(t, err)
}

func TestRemoteGraph_Invoke_PostsStateAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var state map[string]any
		require.NoError(t, json.Unmarshal(body, &state))
		require.Equal(t, "alice", state["user_id"])
		_, _ = w.Write([]byte(`{"task_created":true,"response":"Task #42 created"}`))
	}))
	defer srv.Close()

	g, err := NewRemoteGraph(srv.URL, WithRemoteHTTPClient(srv.Client()))
	require.NoError(t, err)

	res, err := g.Invoke(context.Background(), testState())
	require.NoError(t, err)
	require.Equal(t, TaskCreated{Message: "Task #42 created"}, res)
}

func TestRemoteGraph_Invoke_MalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"task_created":null,"response":{"rag_used":false,"chunks":[]}}`))
	}))
	defer srv.Close()

	g, err := NewRemoteGraph(srv.URL)
	require.NoError(t, err)
	_, err = g.Invoke(context.Background(), testState())
	require.ErrorIs(t, err, ErrMalformedResult)
}

func TestRemoteGraph_Invoke_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g, err := NewRemoteGraph(srv.URL)
	require.NoError(t, err)
	_, err = g.Invoke(context.Background(), testState())

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.HTTPStatusCode())
}

func TestRemoteGraph_Invoke_OversizedReply(t *testing.T) {
	answer := strings.Repeat("a", maxRemoteResultBytes)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"answer":"` + answer + `","rag_used":false,"chunks":[]}}`))
	}))
	defer srv.Close()

	g, err := NewRemoteGraph(srv.URL)
	require.NoError(t, err)
	_, err = g.Invoke(context.Background(), testState())
	require.ErrorIs(t, err, ErrOversizedResult)
	require.NotErrorIs(t, err, ErrMalformedResult)
}

func TestRemoteGraph_Invoke_ReplyAtLimit(t *testing.T) {
	prefix := `{"response":{"answer":"`
	suffix := `","rag_used":false,"chunks":[]}}`
	answer := strings.Repeat("a", maxRemoteResultBytes-len(prefix)-len(suffix))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(prefix + answer + suffix))
	}))
	defer srv.Close()

	g, err := NewRemoteGraph(srv.URL)
	require.NoError(t, err)
	res, err := g.Invoke(context.Background(), testState())
	require.NoError(t, err)
	require.Equal(t, answer, res.(ChatAnswer).Answer)
}
