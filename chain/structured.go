package chain

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// suggestionsResponse is the shape the openai backend forces the model to emit.
type suggestionsResponse struct {
	Suggestions []string `json:"suggestions" jsonschema:"description=Alternative completions, most likely first"`
}

func generateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// Structured is an llms.Model backed by the openai-go client. Every request
// carries a strict JSON schema response format so the reply always decodes
// as {"suggestions": [...]}.
type Structured struct {
	client openai.Client
	model  string
	schema any
}

var _ llms.Model = (*Structured)(nil)

// NewStructured creates a Structured model. baseURL may be empty.
func NewStructured(apiKey, model, baseURL string) *Structured {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// The bridge never retries; a failed call becomes an empty result.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Structured{
		client: openai.NewClient(opts...),
		model:  model,
		schema: generateSchema[suggestionsResponse](),
	}
}

// Call implements llms.Model.
func (s *Structured) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, options...)
}

// GenerateContent implements llms.Model.
func (s *Structured) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	model := s.model
	if opts.Model != "" {
		model = opts.Model
	}

	params := openai.ChatCompletionNewParams{
		Messages:    toChatMessages(messages),
		Model:       openai.ChatModel(model),
		Temperature: openai.Float(opts.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "completion_suggestions",
					Description: openai.String("Code completion suggestions"),
					Schema:      s.schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	completion, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "chat completion")
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}
	choice := completion.Choices[0]
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    choice.Message.Content,
			StopReason: string(choice.FinishReason),
		}},
	}, nil
}

func toChatMessages(messages []llms.MessageContent) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		var sb strings.Builder
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				sb.WriteString(text.Text)
			}
		}
		switch m.Role {
		case schema.ChatMessageTypeSystem:
			out = append(out, openai.SystemMessage(sb.String()))
		case schema.ChatMessageTypeAI:
			out = append(out, openai.AssistantMessage(sb.String()))
		default:
			out = append(out, openai.UserMessage(sb.String()))
		}
	}
	return out
}
