package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

const llmSystemPrompt = "You are a worker in a multi-step task workflow. " +
	"Follow the Workflow I/O Contract in the prompt exactly: produce the requested report " +
	"as markdown sections and end your response with STATUS: PASSED or STATUS: FAILED."

// LLMOptions configures the OpenAI-compatible endpoint behind llm bindings.
type LLMOptions struct {
	BaseURL string
	Model   string
	// TokenEnv names the environment variable holding the API key.
	TokenEnv string
}

// LLMRunner executes a step by asking a language model for the report. The
// model's response becomes the attempt output; the crew captures it as the
// step report and reads the STATUS trailer for the signal.
type LLMRunner struct {
	model llms.Model
}

// NewLLMRunner builds an OpenAI-compatible client per the options.
func NewLLMRunner(opts LLMOptions) (*LLMRunner, error) {
	token := os.Getenv(opts.TokenEnv)
	if opts.TokenEnv == "" || token == "" {
		return nil, fmt.Errorf("worker: llm api key env %q is not set", opts.TokenEnv)
	}
	clientOpts := []openai.Option{openai.WithToken(token)}
	if opts.Model != "" {
		clientOpts = append(clientOpts, openai.WithModel(opts.Model))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}
	model, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("worker: llm client: %w", err)
	}
	return &LLMRunner{model: model}, nil
}

// Run sends the rendered prompt and returns the model's first choice.
func (r *LLMRunner) Run(ctx context.Context, req Request) (Result, error) {
	messages := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(llmSystemPrompt)},
		},
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(req.Prompt)},
		},
	}
	resp, err := r.model.GenerateContent(ctx, messages)
	if err != nil {
		return Result{}, fmt.Errorf("worker: llm generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("worker: llm returned no choices")
	}
	return Result{Output: resp.Choices[0].Content}, nil
}
