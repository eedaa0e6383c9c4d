package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/wspiernik/internal/config"
	"github.com/raphaelgruber/wspiernik/internal/metrics"
	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model is a Generator backed by a langchaingo model. Every call is bounded
// by the configured timeout.
type Model struct {
	llm         llms.Model
	provider    string
	modelName   string
	timeout     time.Duration
	temperature float64
	maxTokens   int
	metrics     *metrics.Collector
	logger      *slog.Logger
}

// New builds the Generator selected by cfg.LLMProvider. The "mock" provider
// returns canned Polish replies and needs no backend.
func New(ctx context.Context, cfg config.LLMConfig, collector *metrics.Collector, logger *slog.Logger) (Generator, error) {
	if cfg.Provider == config.ProviderMock {
		return NewCanned(), nil
	}
	return NewModel(ctx, cfg, collector, logger)
}

// NewModel creates a langchaingo-backed model.
func NewModel(ctx context.Context, cfg config.LLMConfig, collector *metrics.Collector, logger *slog.Logger) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.URL),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
		if cfg.URL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.URL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		llm:         model,
		provider:    cfg.Provider,
		modelName:   cfg.Model,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		metrics:     collector,
		logger:      logger,
	}, nil
}

// Generate sends the system prompt followed by the history and returns the
// first choice. Failures are returned as *Error.
func (m *Model) Generate(ctx context.Context, systemPrompt string, history []models.Message) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, toMessageContent(systemPrompt, history),
		llms.WithTemperature(m.temperature),
		llms.WithMaxTokens(m.maxTokens),
	)
	elapsed := time.Since(start)

	if err != nil {
		err = wrapFatalError(err)
		if errors.Is(err, ErrFatalAPI) {
			m.logger.Error("llm call failed permanently", "provider", m.provider, "error", err)
		}
		return "", &Error{
			Provider: m.provider,
			Timeout:  errors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:      err,
		}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", &Error{Provider: m.provider, Err: ErrEmptyResponse}
	}

	choice := resp.Choices[0]
	if m.metrics != nil {
		in, out := tokenUsage(choice.GenerationInfo)
		m.metrics.RecordLLMUsage(metrics.OpLLMGenerate, elapsed, in, out)
	}
	m.logger.Debug("llm generate", "provider", m.provider, "model", m.modelName, "duration_ms", elapsed.Milliseconds())
	return choice.Content, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

func toMessageContent(systemPrompt string, history []models.Message) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(history)+1)
	if systemPrompt != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	for _, h := range history {
		var role llms.ChatMessageType
		switch h.Role {
		case models.RoleUser:
			role = llms.ChatMessageTypeHuman
		case models.RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeSystem
		}
		msgs = append(msgs, llms.TextParts(role, h.Content))
	}
	return msgs
}

// tokenUsage reads token counts from provider-specific generation info.
func tokenUsage(info map[string]any) (int64, int64) {
	return firstInt(info, "PromptTokens", "input_tokens", "InputTokens"),
		firstInt(info, "CompletionTokens", "output_tokens", "OutputTokens")
}

func firstInt(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
