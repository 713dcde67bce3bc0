package resilience

import (
	"context"
	"errors"

	"github.com/ramadascd1-rgb/FUNtastic/internal/content"
)

// ContentFallback implements [content.Backend] with failover across several
// content backends. A backend that reports [content.ErrUnsupported] is passed
// over without counting against its breaker.
type ContentFallback struct {
	group *FallbackGroup[content.Backend]
}

var _ content.Backend = (*ContentFallback)(nil)

// ContentIsFailure is the breaker failure predicate used by
// [NewContentFallback] unless the config sets its own.
func ContentIsFailure(err error) bool {
	return DefaultIsFailure(err) && !errors.Is(err, content.ErrUnsupported)
}

// NewContentFallback creates a [ContentFallback] with primary as the
// preferred backend.
func NewContentFallback(primary content.Backend, primaryName string, cfg FallbackConfig) *ContentFallback {
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = ContentIsFailure
	}
	return &ContentFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after the ones before it.
func (f *ContentFallback) AddFallback(name string, b content.Backend) {
	f.group.AddFallback(name, b)
}

// Status reports the breaker state of every backend.
func (f *ContentFallback) Status() []EntryStatus { return f.group.Status() }

// GenerateImage implements content.Backend.
func (f *ContentFallback) GenerateImage(ctx context.Context, prompt string) (content.Image, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, b content.Backend) (content.Image, error) {
		return b.GenerateImage(ctx, prompt)
	})
}

// GenerateVideo implements content.Backend. Progress from every attempted
// backend is forwarded.
func (f *ContentFallback) GenerateVideo(ctx context.Context, prompt string, progress content.Progress) (content.Video, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, b content.Backend) (content.Video, error) {
		return b.GenerateVideo(ctx, prompt, progress)
	})
}

// SuggestCaption implements content.Backend.
func (f *ContentFallback) SuggestCaption(ctx context.Context, description string) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, b content.Backend) (string, error) {
		return b.SuggestCaption(ctx, description)
	})
}
