package taskbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"campus-assistant/internal/domain"
)

const DefaultChannel = "agent-tasks"

// redisAPI is the subset of *goredis.Client used by Publisher.
type redisAPI interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
	Close() error
}

// event is the JSON message published for every created task.
type event struct {
	Type string      `json:"type"`
	Task domain.Task `json:"task"`
}

// Publisher announces created agent tasks on a Redis pub/sub channel so task
// workers can pick them up.
type Publisher struct {
	rdb     redisAPI
	channel string
}

func New(rdb redisAPI, channel string) (*Publisher, error) {
	if rdb == nil {
		return nil, errors.New("taskbus: redis client must not be nil")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{rdb: rdb, channel: channel}, nil
}

// Dial connects to Redis at addr and verifies the connection with a ping.
func Dial(ctx context.Context, addr, channel string) (*Publisher, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("taskbus: redis address must not be empty")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("taskbus: redis ping: %w", err)
	}
	return New(rdb, channel)
}

func (p *Publisher) Publish(ctx context.Context, task domain.Task) error {
	if p == nil || p.rdb == nil {
		return errors.New("taskbus: publisher not initialized")
	}
	raw, err := json.Marshal(event{Type: "task.created", Task: task})
	if err != nil {
		return fmt.Errorf("taskbus: marshal task: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, raw).Err(); err != nil {
		return fmt.Errorf("taskbus: publish to %q: %w", p.channel, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
