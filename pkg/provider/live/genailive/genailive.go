// Package genailive implements [live.Provider] on top of the official
// google.golang.org/genai SDK's Live client. It speaks the same
// BidiGenerateContent protocol as package gemini but delegates framing,
// authentication and backend selection (Gemini API or Vertex AI) to the SDK.
package genailive

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live"
)

// Compile-time assertions.
var (
	_ live.Provider = (*Provider)(nil)
	_ live.Conn     = (*conn)(nil)
	_ Session       = (*genai.Session)(nil)
)

// DefaultModel is used when the session config names no model.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

const outputSampleRate = 24000

// Session is the subset of [*genai.Session] the transport uses.
type Session interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// Dialer opens a live session. The default dialer wraps
// [genai.Live.Connect].
type Dialer func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (Session, error)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithDialer replaces the SDK dialer. Used in tests.
func WithDialer(d Dialer) Option {
	return func(p *Provider) { p.dial = d }
}

// Provider implements live.Provider using the genai SDK.
type Provider struct {
	model string
	dial  Dialer
}

// New creates a provider that dials through client.
func New(client *genai.Client, opts ...Option) *Provider {
	p := &Provider{model: DefaultModel}
	if client != nil {
		p.dial = func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (Session, error) {
			return client.Live.Connect(ctx, model, cfg)
		}
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewWithAPIKey builds a Gemini API client for apiKey and returns a provider
// using it.
func NewWithAPIKey(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genailive: create client: %w", err)
	}
	return New(client, opts...), nil
}

// ConnectConfig translates cfg into the SDK's connect configuration.
func ConnectConfig(cfg live.Config) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if cfg.Voice != "" {
		out.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.Instructions != "" {
		out.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.Instructions}}}
	}
	if cfg.Transcribe {
		out.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
		out.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return out
}

// Connect opens an SDK live session.
func (p *Provider) Connect(ctx context.Context, cfg live.Config) (live.Conn, error) {
	if p.dial == nil {
		return nil, errors.New("genailive: no client configured")
	}
	model := p.model
	if cfg.Model != "" {
		model = cfg.Model
	}

	sess, err := p.dial(ctx, model, ConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("genailive: connect: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	c := &conn{
		sess:   sess,
		events: make(chan live.Event, 64),
		ctx:    sessCtx,
		cancel: cancel,
	}
	c.wg.Go(c.receiveLoop)
	return c, nil
}

// Translate converts one server message into zero or more events, in the
// order a client should observe them.
func Translate(msg *genai.LiveServerMessage) []live.Event {
	if msg == nil {
		return nil
	}
	var events []live.Event
	if msg.SetupComplete != nil {
		events = append(events, live.EventOpen{})
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.Interrupted {
			events = append(events, live.EventInterrupted{})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
					continue
				}
				events = append(events, live.EventAudio{
					Data:       base64.StdEncoding.EncodeToString(part.InlineData.Data),
					SampleRate: sampleRate(part.InlineData.MIMEType),
					Channels:   1,
				})
			}
		}
		if t := sc.InputTranscription; t != nil && t.Text != "" {
			events = append(events, live.EventTranscript{Role: live.RoleSelf, Text: t.Text})
		}
		if t := sc.OutputTranscription; t != nil && t.Text != "" {
			events = append(events, live.EventTranscript{Role: live.RoleRemote, Text: t.Text})
		}
	}
	return events
}

func sampleRate(mimeType string) int {
	if _, params, err := mime.ParseMediaType(mimeType); err == nil {
		if r, err := strconv.Atoi(params["rate"]); err == nil && r > 0 {
			return r
		}
	}
	return outputSampleRate
}

type conn struct {
	sess   Session
	events chan live.Event

	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (c *conn) emit(ev live.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *conn) receiveLoop() {
	defer close(c.events)

	for {
		msg, err := c.sess.Receive()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.markClosed()
			if isNormalClosure(err) {
				c.emit(live.EventClose{Reason: "remote closed"})
				return
			}
			c.emit(live.EventError{Err: fmt.Errorf("genailive: receive: %w", err)})
			return
		}

		for _, ev := range Translate(msg) {
			if !c.emit(ev) {
				return
			}
		}
	}
}

// isNormalClosure reports whether err signals an orderly remote close. The
// SDK surfaces the underlying websocket error text unchanged.
func isNormalClosure(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "close 1000") || strings.Contains(s, "close 1001")
}

func (c *conn) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// SendRealtimeInput forwards one chunk as raw PCM bytes.
func (c *conn) SendRealtimeInput(_ context.Context, chunk audio.EncodedChunk) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return live.ErrClosed
	}
	c.mu.Unlock()

	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		return fmt.Errorf("genailive: send audio: %w", err)
	}
	err = c.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: raw, MIMEType: chunk.MIMEType()},
	})
	if err != nil {
		return fmt.Errorf("genailive: send audio: %w", err)
	}
	return nil
}

func (c *conn) Events() <-chan live.Event { return c.events }

// Close is idempotent.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed && c.ctx.Err() != nil {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	_ = c.sess.Close() // unblocks Receive
	c.wg.Wait()
	return nil
}
