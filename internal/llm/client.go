package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// ClientOptions controls how the OpenRouter client is initialised.
type ClientOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// Client wraps the OpenAI SDK services used by Quillcast.
type Client struct {
	chat    chatCompletionClient
	logger  *logrus.Logger
	baseURL string
}

type chatCompletionClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// ErrBlocked indicates the remote model rejected the request via its content filter.
var ErrBlocked = eris.New("llm blocked the request via content filter")

// NewClient constructs a Client configured for an OpenAI-compatible endpoint.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, eris.New("llm api key is required")
	}

	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}

	requestOptions := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(baseURL),
	}

	if opts.HTTPClient != nil {
		requestOptions = append(requestOptions, option.WithHTTPClient(opts.HTTPClient))
	}

	apiClient := openai.NewClient(requestOptions...)

	return &Client{
		chat:    &apiClient.Chat.Completions,
		logger:  opts.Logger,
		baseURL: baseURL,
	}, nil
}

// Logger exposes the logger associated with the client.
func (c *Client) Logger() *logrus.Logger {
	return c.logger
}

// BaseURL returns the configured base URL for outbound requests.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// complete performs one chat completion and applies the shared refusal and
// content-filter checks before handing the raw message content back.
func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	completion, err := c.chat.New(ctx, params)
	if err != nil {
		return "", eris.Wrap(err, "requesting chat completion")
	}

	if len(completion.Choices) == 0 {
		return "", eris.New("llm completion returned no choices")
	}

	choice := completion.Choices[0]
	if reason := strings.TrimSpace(choice.FinishReason); strings.EqualFold(reason, "content_filter") {
		return "", ErrBlocked
	}

	if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
		return "", eris.Errorf("llm refused the request: %s", refusal)
	}

	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", eris.Wrap(ErrMalformedPayload, "llm response content is empty")
	}

	return content, nil
}

func (c *Client) logError(fields logrus.Fields, err error, message string) {
	if c.logger == nil || err == nil {
		return
	}

	entry := c.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}

func (c *Client) logRetry(fields logrus.Fields, err error, message string) {
	if c.logger == nil || err == nil {
		return
	}

	entry := c.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Warn(message)
}
