package sim

import (
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/pitchdrill/pitchdrill/pkg/types"
)

const defaultPersona = "You are a skeptical homeowner answering the door to a " +
	"pest-control sales rep. Stay in character, keep replies to one or two " +
	"spoken sentences, and raise realistic objections about price, timing, " +
	"authority, or need."

// OpenAIResponder generates prospect lines with the OpenAI chat API.
type OpenAIResponder struct {
	client  oai.Client
	model   string
	persona string
}

// responderConfig holds optional configuration for the responder.
type responderConfig struct {
	baseURL string
	persona string
}

// ResponderOption is a functional option for [NewOpenAIResponder].
type ResponderOption func(*responderConfig)

// WithPersona overrides the default prospect persona prompt.
func WithPersona(persona string) ResponderOption {
	return func(c *responderConfig) {
		c.persona = persona
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) ResponderOption {
	return func(c *responderConfig) {
		c.baseURL = url
	}
}

// NewOpenAIResponder constructs a Responder backed by the OpenAI API. An
// empty apiKey defers to the SDK's environment lookup (OPENAI_API_KEY).
func NewOpenAIResponder(apiKey, model string, opts ...ResponderOption) (*OpenAIResponder, error) {
	if model == "" {
		return nil, fmt.Errorf("sim: model must not be empty")
	}

	cfg := &responderConfig{persona: defaultPersona}
	for _, o := range opts {
		o(cfg)
	}

	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &OpenAIResponder{
		client:  oai.NewClient(reqOpts...),
		model:   model,
		persona: cfg.persona,
	}, nil
}

// Reply implements [Responder]. The trainee's lines become user messages and
// earlier prospect lines become assistant messages, so the model continues
// the conversation in character.
func (r *OpenAIResponder) Reply(ctx context.Context, history []ScriptLine) (string, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, oai.SystemMessage(r.persona))
	for _, line := range history {
		switch line.Speaker {
		case types.SpeakerTrainee:
			messages = append(messages, oai.UserMessage(line.Text))
		case types.SpeakerProspect:
			messages = append(messages, oai.AssistantMessage(line.Text))
		}
	}

	resp, err := r.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(r.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("sim: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("sim: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
