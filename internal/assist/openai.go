package assist

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"odin/internal/metrics"
)

const systemPrompt = `
You are the voice assistant of ODIN, a navigation aid for blind and low-vision people.
Your answers are spoken aloud.

RULES:
1. Answer in at most three short sentences.
2. No markdown, no lists, no URLs.
3. Give distances in meters and directions relative to the user.
4. If a location is given, assume the user stands there.
5. If you do not know, say so plainly.
`

// OpenAI is an Assistant backed by chat completions. It has no maps
// grounding, so answers carry no sources.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI accepts extra request options after the http client, such as a
// base URL for compatible servers.
func NewOpenAI(apiKey, model string, httpClient *http.Client, extra ...option.RequestOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: missing api key")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	opts = append(opts, extra...)
	if model == "" {
		model = string(openai.ChatModelGPT5Nano)
	}

	return &OpenAI{client: openai.NewClient(opts...), model: model}, nil
}

func (o *OpenAI) Ask(ctx context.Context, query string, loc *Location) (Answer, error) {
	user := query
	if loc != nil {
		user = fmt.Sprintf("%s\n(User location: %.6f, %.6f)", query, loc.Lat, loc.Lng)
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
		Model: openai.ChatModel(o.model),
	})
	if err != nil {
		var apiErr *openai.Error
		limited := IsQuota(err)
		if errors.As(err, &apiErr) {
			limited = apiErr.StatusCode == http.StatusTooManyRequests
		}
		if limited {
			metrics.Collaborator.WithLabelValues("assistant", "quota").Inc()
			return Answer{}, quota(err)
		}
		metrics.Collaborator.WithLabelValues("assistant", "error").Inc()
		return Answer{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		metrics.Collaborator.WithLabelValues("assistant", "error").Inc()
		log.Warn("Chat completion returned no choices")
		return Answer{}, nil
	}

	metrics.Collaborator.WithLabelValues("assistant", "ok").Inc()
	return Answer{Text: resp.Choices[0].Message.Content}, nil
}
