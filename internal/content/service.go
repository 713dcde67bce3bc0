package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramadascd1-rgb/FUNtastic/internal/observe"
)

// Kind names a type of generated media.
type Kind string

const (
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindCaption Kind = "caption"
)

// videoCaptionPrefix frames the caption request for a freshly rendered video.
const videoCaptionPrefix = "Fun video about "

// Post is a finished piece of media together with its caption.
type Post struct {
	Kind    Kind   `json:"kind"`
	Prompt  string `json:"prompt"`
	Caption string `json:"caption"`
	Image   *Image `json:"image,omitempty"`
	Video   *Video `json:"video,omitempty"`
}

// Service is the entry point for content generation. It is safe for
// concurrent use as long as the backend is.
type Service struct {
	backend  Backend
	provider string
	metrics  *observe.Metrics
}

// Option configures a [Service].
type Option func(*Service)

// WithMetrics records latency and outcome on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wraps backend. provider labels metrics and spans.
func NewService(backend Backend, provider string, opts ...Option) *Service {
	s := &Service{backend: backend, provider: provider}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// GenerateImage returns a square image for prompt.
func (s *Service) GenerateImage(ctx context.Context, prompt string) (Image, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Image{}, ErrEmptyPrompt
	}
	var img Image
	err := s.observe(ctx, KindImage, func(ctx context.Context) (err error) {
		img, err = s.backend.GenerateImage(ctx, prompt)
		return err
	})
	if err != nil {
		return Image{}, fmt.Errorf("content: generate image: %w", err)
	}
	return img, nil
}

// GenerateVideo renders a vertical clip for prompt. progress may be nil.
func (s *Service) GenerateVideo(ctx context.Context, prompt string, progress Progress) (Video, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Video{}, ErrEmptyPrompt
	}
	var v Video
	err := s.observe(ctx, KindVideo, func(ctx context.Context) (err error) {
		v, err = s.backend.GenerateVideo(ctx, prompt, progress)
		return err
	})
	if err != nil {
		return Video{}, fmt.Errorf("content: generate video: %w", err)
	}
	return v, nil
}

// SuggestCaption returns a caption for description, or [FallbackCaption]
// when the backend answers with nothing.
func (s *Service) SuggestCaption(ctx context.Context, description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", ErrEmptyPrompt
	}
	var caption string
	err := s.observe(ctx, KindCaption, func(ctx context.Context) (err error) {
		caption, err = s.backend.SuggestCaption(ctx, description)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("content: suggest caption: %w", err)
	}
	if caption = strings.TrimSpace(caption); caption == "" {
		return FallbackCaption, nil
	}
	return caption, nil
}

// Create generates media of kind for prompt and captions it.
func (s *Service) Create(ctx context.Context, kind Kind, prompt string, progress Progress) (Post, error) {
	post := Post{Kind: kind, Prompt: strings.TrimSpace(prompt)}

	var describe string
	switch kind {
	case KindImage:
		img, err := s.GenerateImage(ctx, prompt)
		if err != nil {
			return Post{}, err
		}
		post.Image = &img
		describe = post.Prompt
	case KindVideo:
		v, err := s.GenerateVideo(ctx, prompt, progress)
		if err != nil {
			return Post{}, err
		}
		post.Video = &v
		describe = videoCaptionPrefix + post.Prompt
	default:
		return Post{}, fmt.Errorf("content: create: unsupported kind %q", kind)
	}

	caption, err := s.SuggestCaption(ctx, describe)
	if err != nil {
		slog.Warn("content: caption failed, using fallback", "kind", kind, "err", err)
		caption = FallbackCaption
	}
	post.Caption = caption
	return post, nil
}

func (s *Service) observe(ctx context.Context, kind Kind, fn func(context.Context) error) error {
	ctx, span := observe.StartSpan(ctx, "content."+string(kind),
		trace.WithAttributes(
			attribute.String("content.kind", string(kind)),
			attribute.String("content.provider", s.provider),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	s.metrics.RecordContent(ctx, string(kind), s.provider, elapsed.Seconds(), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observe.Logger(ctx).Warn("content generation failed",
			"kind", kind, "provider", s.provider, "duration", elapsed, "err", err)
		return err
	}
	observe.Logger(ctx).Info("content generated",
		"kind", kind, "provider", s.provider, "duration", elapsed)
	return nil
}
