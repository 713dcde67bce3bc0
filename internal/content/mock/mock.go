// Package mock provides a scripted [content.Backend] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/ramadascd1-rgb/FUNtastic/internal/content"
)

var _ content.Backend = (*Backend)(nil)

// Call records one backend invocation.
type Call struct {
	Kind   content.Kind
	Prompt string
}

// Backend returns the configured results and records every call.
type Backend struct {
	mu sync.Mutex

	Image    content.Image
	ImageErr error

	Video    content.Video
	VideoErr error

	// Progress lines are replayed to the caller's Progress during
	// GenerateVideo.
	Progress []string

	Caption    string
	CaptionErr error

	Calls []Call
}

func (b *Backend) record(kind content.Kind, prompt string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, Call{Kind: kind, Prompt: prompt})
}

// CallCount returns the number of recorded calls of kind.
func (b *Backend) CallCount(kind content.Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.Calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// LastPrompt returns the prompt of the most recent call of kind.
func (b *Backend) LastPrompt(kind content.Kind) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.Calls) - 1; i >= 0; i-- {
		if b.Calls[i].Kind == kind {
			return b.Calls[i].Prompt
		}
	}
	return ""
}

// GenerateImage implements content.Backend.
func (b *Backend) GenerateImage(ctx context.Context, prompt string) (content.Image, error) {
	b.record(content.KindImage, prompt)
	if err := ctx.Err(); err != nil {
		return content.Image{}, err
	}
	if b.ImageErr != nil {
		return content.Image{}, b.ImageErr
	}
	return b.Image, nil
}

// GenerateVideo implements content.Backend.
func (b *Backend) GenerateVideo(ctx context.Context, prompt string, progress content.Progress) (content.Video, error) {
	b.record(content.KindVideo, prompt)
	for _, msg := range b.Progress {
		progress.Report(msg)
	}
	if err := ctx.Err(); err != nil {
		return content.Video{}, err
	}
	if b.VideoErr != nil {
		return content.Video{}, b.VideoErr
	}
	return b.Video, nil
}

// SuggestCaption implements content.Backend.
func (b *Backend) SuggestCaption(ctx context.Context, description string) (string, error) {
	b.record(content.KindCaption, description)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if b.CaptionErr != nil {
		return "", b.CaptionErr
	}
	return b.Caption, nil
}
