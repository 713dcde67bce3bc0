// Package content generates shareable media for the feed: square images,
// short vertical videos and captions.
//
// A [Backend] talks to one generation API. [Service] wraps a backend (often a
// failover group of several) with input validation, tracing, metrics and the
// caption fallback.
package content

import (
	"context"
	"encoding/base64"
	"errors"
)

// Prompt prefixes applied by every backend.
const (
	ImagePromptPrefix   = "Generate a fun, vibrant, social media style image: "
	VideoPromptPrefix   = "A short fun social media loop: "
	CaptionPromptPrefix = "Suggest a fun, catchy, Gen-Z style social media caption with hashtags for: "
)

// FallbackCaption is returned when a backend produces an empty caption.
const FallbackCaption = "Living my best life! ✨ #FUNtastic"

// Progress messages reported while a video renders.
const (
	ProgressStarting  = "Igniting the magic engines..."
	ProgressRendering = "Rendering your masterpiece..."
)

// Output geometry.
const (
	ImageAspectRatio = "1:1"
	VideoAspectRatio = "9:16"
	VideoResolution  = "720p"
	CaptionMaxTokens = 100
)

var (
	// ErrEmptyPrompt is returned for blank prompts and descriptions.
	ErrEmptyPrompt = errors.New("content: prompt must not be empty")

	// ErrNoContent is returned when a backend answers without media.
	ErrNoContent = errors.New("content: no media in response")

	// ErrUnsupported is returned by backends that cannot produce a kind of
	// media. Failover treats it as a skip, not a failure.
	ErrUnsupported = errors.New("content: not supported by backend")
)

// Image is a generated still image.
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// DataURL returns the image as an inline "data:" URL.
func (i Image) DataURL() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Video is a generated clip. URI is the backend's download location, if any.
type Video struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	URI      string `json:"uri,omitempty"`
}

// Progress receives human-readable status lines during long operations. It
// may be nil.
type Progress func(msg string)

// Report delivers msg. It is safe to call on a nil Progress.
func (p Progress) Report(msg string) {
	if p != nil {
		p(msg)
	}
}

// Backend produces media through one generation API.
type Backend interface {
	// GenerateImage returns a square image for prompt.
	GenerateImage(ctx context.Context, prompt string) (Image, error)

	// GenerateVideo renders a 9:16 clip for prompt, reporting progress while
	// it waits. It blocks until the video is downloaded or ctx ends.
	GenerateVideo(ctx context.Context, prompt string, progress Progress) (Video, error)

	// SuggestCaption returns a short caption for description. An empty result
	// is allowed; [Service] substitutes [FallbackCaption].
	SuggestCaption(ctx context.Context, description string) (string, error)
}
