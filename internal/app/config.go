package app

import (
	"fmt"
	"strconv"
	"strings"

	"campus-assistant/internal/integrations/taskbus"
)

// Config is the process configuration. It is read from the environment only
// once, at startup. A nil OpenAITemperature keeps the provider default.
type Config struct {
	StateTable        string
	ParamPrefix       string
	MaxMessageLength  int
	MaxHistoryItems   int
	KnowledgeTopK     int
	OpenAIModel       string
	OpenAITemperature *float64
	GraphURL          string
	RedisAddr         string
	TaskChannel       string
	ListenAddr        string
	CORSOrigins       []string
}

// ConfigFromEnv builds a Config from getenv, usually os.Getenv.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		StateTable:       strings.TrimSpace(getenv("STATE_TABLE")),
		ParamPrefix:      strings.TrimSpace(getenv("PARAM_PREFIX")),
		MaxMessageLength: envInt(getenv, "MAX_MESSAGE_LENGTH", 4000),
		MaxHistoryItems:  envInt(getenv, "MAX_HISTORY_ITEMS", 20),
		KnowledgeTopK:    envInt(getenv, "KNOWLEDGE_TOP_K", 3),
		OpenAIModel:      strings.TrimSpace(getenv("OPENAI_MODEL")),
		GraphURL:         strings.TrimSpace(getenv("GRAPH_URL")),
		RedisAddr:        strings.TrimSpace(getenv("REDIS_ADDR")),
		TaskChannel:      envString(getenv, "TASK_CHANNEL", taskbus.DefaultChannel),
		ListenAddr:       envString(getenv, "LISTEN_ADDR", ":8080"),
		CORSOrigins:      envList(getenv, "CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
	}
	if v := strings.TrimSpace(getenv("OPENAI_TEMPERATURE")); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 || t > 2 {
			return Config{}, fmt.Errorf("app: OPENAI_TEMPERATURE must be a number between 0 and 2, got %q", v)
		}
		cfg.OpenAITemperature = &t
	}
	if cfg.StateTable == "" {
		return Config{}, fmt.Errorf("app: required environment variable %s is not set", "STATE_TABLE")
	}
	if cfg.ParamPrefix == "" {
		return Config{}, fmt.Errorf("app: required environment variable %s is not set", "PARAM_PREFIX")
	}
	return cfg, nil
}

func envString(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(getenv func(string) string, key string, def int) int {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envList(getenv func(string) string, key string, def []string) []string {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
