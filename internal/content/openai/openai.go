// Package openai implements [content.Backend] on the OpenAI API. It covers
// images and captions; video generation is reported as unsupported so that a
// failover group moves on without counting a failure.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/ramadascd1-rgb/FUNtastic/internal/content"
)

// Default models.
const (
	DefaultImageModel   = "dall-e-3"
	DefaultCaptionModel = "gpt-4o-mini"
)

var _ content.Backend = (*Backend)(nil)

// Backend generates images and captions through OpenAI.
type Backend struct {
	client       oai.Client
	imageModel   string
	captionModel string
}

type config struct {
	baseURL      string
	imageModel   string
	captionModel string
	timeout      time.Duration
}

// Option configures a [Backend].
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithImageModel overrides [DefaultImageModel].
func WithImageModel(m string) Option {
	return func(c *config) { c.imageModel = m }
}

// WithCaptionModel overrides [DefaultCaptionModel].
func WithCaptionModel(m string) Option {
	return func(c *config) { c.captionModel = m }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI content backend.
func New(apiKey string, opts ...Option) (*Backend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai content: apiKey must not be empty")
	}
	cfg := &config{
		imageModel:   DefaultImageModel,
		captionModel: DefaultCaptionModel,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Backend{
		client:       oai.NewClient(reqOpts...),
		imageModel:   cfg.imageModel,
		captionModel: cfg.captionModel,
	}, nil
}

// GenerateImage implements content.Backend with a square base64 image.
func (b *Backend) GenerateImage(ctx context.Context, prompt string) (content.Image, error) {
	resp, err := b.client.Images.Generate(ctx, oai.ImageGenerateParams{
		Prompt:         content.ImagePromptPrefix + prompt,
		Model:          oai.ImageModel(b.imageModel),
		N:              oai.Int(1),
		Size:           oai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: oai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return content.Image{}, fmt.Errorf("openai content: generate image: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return content.Image{}, content.ErrNoContent
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return content.Image{}, fmt.Errorf("openai content: decode image: %w", err)
	}
	return content.Image{Data: data, MIMEType: "image/png"}, nil
}

// GenerateVideo implements content.Backend. OpenAI has no video model here.
func (b *Backend) GenerateVideo(context.Context, string, content.Progress) (content.Video, error) {
	return content.Video{}, fmt.Errorf("openai content: video: %w", content.ErrUnsupported)
}

// SuggestCaption implements content.Backend.
func (b *Backend) SuggestCaption(ctx context.Context, description string) (string, error) {
	resp, err := b.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(b.captionModel),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(content.CaptionPromptPrefix + description),
		},
		MaxCompletionTokens: oai.Int(content.CaptionMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai content: suggest caption: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
