package orchestration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxRemoteResultBytes = 1 << 20

// ErrOversizedResult reports a remote graph reply larger than the read limit.
var ErrOversizedResult = errors.New("orchestration: remote result too large")

// HTTPStatusError captures a non-2xx reply from the remote graph.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("orchestration: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// RemoteGraph delegates orchestration to a graph service reachable over HTTP.
// The initial state is POSTed as JSON and the reply is decoded with
// DecodeResult.
type RemoteGraph struct {
	url        string
	httpClient *http.Client
}

type RemoteOption func(*RemoteGraph)

func WithRemoteHTTPClient(c *http.Client) RemoteOption {
	return func(g *RemoteGraph) {
		g.httpClient = c
	}
}

func NewRemoteGraph(url string, opts ...RemoteOption) (*RemoteGraph, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("orchestration: remote graph url must not be empty")
	}
	g := &RemoteGraph{
		url:        url,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *RemoteGraph) Invoke(ctx context.Context, state State) (Result, error) {
	body, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("orchestration: marshal state: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("orchestration: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orchestration: invoke remote graph: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: g.url, Body: string(buf)}
	}
	raw, err := io.ReadAll(io.LimitReader(res.Body, maxRemoteResultBytes+1))
	if err != nil {
		return nil, fmt.Errorf("orchestration: read remote result: %w", err)
	}
	if len(raw) > maxRemoteResultBytes {
		return nil, fmt.Errorf("%w: more than %d bytes from %s", ErrOversizedResult, maxRemoteResultBytes, g.url)
	}
	return DecodeResult(raw)
}
