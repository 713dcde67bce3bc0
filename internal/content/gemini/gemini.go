// Package gemini implements [content.Backend] on the Google Gen AI SDK:
// Gemini image generation, Veo video generation and Gemini text captions.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/ramadascd1-rgb/FUNtastic/internal/content"
)

// Default models.
const (
	DefaultImageModel   = "gemini-2.5-flash-image"
	DefaultVideoModel   = "veo-3.1-fast-generate-preview"
	DefaultCaptionModel = "gemini-3-flash-preview"
)

// DefaultPollInterval is how often a running video operation is checked.
const DefaultPollInterval = 5 * time.Second

var _ content.Backend = (*Backend)(nil)

// Models is the subset of [genai.Models] the backend uses.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

// Operations is the subset of [genai.Operations] the backend uses.
type Operations interface {
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

// Backend generates content through Gemini and Veo.
type Backend struct {
	models       Models
	ops          Operations
	apiKey       string
	httpClient   *http.Client
	imageModel   string
	videoModel   string
	captionModel string
	pollInterval time.Duration
}

// Option configures a [Backend].
type Option func(*Backend)

// WithImageModel overrides [DefaultImageModel].
func WithImageModel(m string) Option {
	return func(b *Backend) {
		if m != "" {
			b.imageModel = m
		}
	}
}

// WithVideoModel overrides [DefaultVideoModel].
func WithVideoModel(m string) Option {
	return func(b *Backend) {
		if m != "" {
			b.videoModel = m
		}
	}
}

// WithCaptionModel overrides [DefaultCaptionModel].
func WithCaptionModel(m string) Option {
	return func(b *Backend) {
		if m != "" {
			b.captionModel = m
		}
	}
}

// WithPollInterval overrides [DefaultPollInterval].
func WithPollInterval(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithHTTPClient sets the client used to download finished videos.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) {
		if c != nil {
			b.httpClient = c
		}
	}
}

// New creates a backend on an existing client. apiKey authenticates video
// downloads.
func New(client *genai.Client, apiKey string, opts ...Option) (*Backend, error) {
	if client == nil {
		return nil, errors.New("gemini content: client must not be nil")
	}
	return NewWithServices(client.Models, client.Operations, apiKey, opts...)
}

// NewWithAPIKey creates a Gemini API client for apiKey and wraps it.
func NewWithAPIKey(ctx context.Context, apiKey string, opts ...Option) (*Backend, error) {
	if apiKey == "" {
		return nil, errors.New("gemini content: apiKey must not be empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini content: create client: %w", err)
	}
	return New(client, apiKey, opts...)
}

// NewWithServices builds a backend from explicit model and operation
// services.
func NewWithServices(models Models, ops Operations, apiKey string, opts ...Option) (*Backend, error) {
	if models == nil || ops == nil {
		return nil, errors.New("gemini content: models and operations must not be nil")
	}
	b := &Backend{
		models:       models,
		ops:          ops,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
		imageModel:   DefaultImageModel,
		videoModel:   DefaultVideoModel,
		captionModel: DefaultCaptionModel,
		pollInterval: DefaultPollInterval,
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// GenerateImage implements content.Backend. The first inline image part of
// the first candidate is returned.
func (b *Backend) GenerateImage(ctx context.Context, prompt string) (content.Image, error) {
	resp, err := b.models.GenerateContent(ctx, b.imageModel,
		genai.Text(content.ImagePromptPrefix+prompt),
		&genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{AspectRatio: content.ImageAspectRatio},
		},
	)
	if err != nil {
		return content.Image{}, fmt.Errorf("gemini content: generate image: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return content.Image{}, content.ErrNoContent
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mime := part.InlineData.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return content.Image{Data: part.InlineData.Data, MIMEType: mime}, nil
	}
	return content.Image{}, content.ErrNoContent
}

// GenerateVideo implements content.Backend. It starts a Veo operation, polls
// it every poll interval until done and downloads the first video.
func (b *Backend) GenerateVideo(ctx context.Context, prompt string, progress content.Progress) (content.Video, error) {
	progress.Report(content.ProgressStarting)
	op, err := b.models.GenerateVideos(ctx, b.videoModel, content.VideoPromptPrefix+prompt, nil,
		&genai.GenerateVideosConfig{
			NumberOfVideos: 1,
			Resolution:     content.VideoResolution,
			AspectRatio:    content.VideoAspectRatio,
		},
	)
	if err != nil {
		return content.Video{}, fmt.Errorf("gemini content: start video: %w", err)
	}
	if op == nil {
		return content.Video{}, errors.New("gemini content: video operation missing")
	}

	progress.Report(content.ProgressRendering)
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return content.Video{}, ctx.Err()
		case <-ticker.C:
		}
		next, err := b.ops.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return content.Video{}, fmt.Errorf("gemini content: poll video: %w", err)
		}
		if next == nil {
			return content.Video{}, errors.New("gemini content: video operation missing")
		}
		op = next
		if !op.Done {
			slog.Debug("gemini content: video still rendering", "operation", op.Name)
		}
	}

	if len(op.Error) > 0 {
		return content.Video{}, fmt.Errorf("gemini content: video failed: %v", op.Error)
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 ||
		op.Response.GeneratedVideos[0] == nil || op.Response.GeneratedVideos[0].Video == nil {
		return content.Video{}, content.ErrNoContent
	}

	gv := op.Response.GeneratedVideos[0].Video
	v := content.Video{Data: gv.VideoBytes, MIMEType: gv.MIMEType, URI: gv.URI}
	if v.MIMEType == "" {
		v.MIMEType = "video/mp4"
	}
	if len(v.Data) > 0 {
		return v, nil
	}
	if v.URI == "" {
		return content.Video{}, content.ErrNoContent
	}
	v.Data, err = b.download(ctx, v.URI)
	if err != nil {
		return content.Video{}, err
	}
	return v, nil
}

// download fetches a generated file, authenticating with the API key as a
// query parameter.
func (b *Backend) download(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("gemini content: parse video uri: %w", err)
	}
	if b.apiKey != "" {
		q := u.Query()
		q.Set("key", b.apiKey)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini content: build download request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini content: download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gemini content: download video: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini content: read video: %w", err)
	}
	return data, nil
}

// SuggestCaption implements content.Backend.
func (b *Backend) SuggestCaption(ctx context.Context, description string) (string, error) {
	resp, err := b.models.GenerateContent(ctx, b.captionModel,
		genai.Text(content.CaptionPromptPrefix+description),
		&genai.GenerateContentConfig{MaxOutputTokens: content.CaptionMaxTokens},
	)
	if err != nil {
		return "", fmt.Errorf("gemini content: suggest caption: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Text()), nil
}
