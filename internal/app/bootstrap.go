package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"campus-assistant/internal/integrations/openai"
	"campus-assistant/internal/integrations/paramstore"
	"campus-assistant/internal/integrations/taskbus"
	"campus-assistant/internal/repository"
)

// Bootstrap connects the AWS, OpenAI and Redis clients described by cfg and
// initializes the dependencies. The returned close function releases the task
// bus connection.
func Bootstrap(ctx context.Context, cfg Config) (*Dependencies, func() error, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("app: load AWS config: %w", err)
	}

	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, nil, fmt.Errorf("app: SSM client: %w", err)
	}
	memory, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	if err != nil {
		return nil, nil, fmt.Errorf("app: state client: %w", err)
	}
	llm, err := openai.NewClient(ssmClient, cfg.ParamPrefix, openAIOptions(cfg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("app: OpenAI client: %w", err)
	}

	collaborators := Collaborators{Params: ssmClient, LLM: llm}
	closeFn := func() error { return nil }
	if cfg.RedisAddr != "" {
		bus, err := taskbus.Dial(ctx, cfg.RedisAddr, cfg.TaskChannel)
		if err != nil {
			return nil, nil, fmt.Errorf("app: task bus: %w", err)
		}
		collaborators.Publisher = bus
		closeFn = bus.Close
		slog.Info("task bus connected", "addr", cfg.RedisAddr, "channel", cfg.TaskChannel)
	}

	deps, err := Initialize(cfg, memory, collaborators)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	if cfg.GraphURL != "" {
		slog.Info("orchestration delegated to remote graph", "url", cfg.GraphURL)
	}
	return deps, closeFn, nil
}

// openAIOptions pins the model and temperature when they are configured;
// otherwise the model is read from SSM and the provider default temperature
// applies.
func openAIOptions(cfg Config) []openai.Option {
	var opts []openai.Option
	if cfg.OpenAIModel != "" {
		opts = append(opts, openai.WithModel(cfg.OpenAIModel))
	}
	if cfg.OpenAITemperature != nil {
		opts = append(opts, openai.WithTemperature(*cfg.OpenAITemperature))
	}
	return opts
}
