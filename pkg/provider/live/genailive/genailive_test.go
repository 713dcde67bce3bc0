package genailive_test

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/pcm"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live/genailive"
)

// fakeSession feeds scripted server messages and records sent input.
type fakeSession struct {
	msgs chan *genai.LiveServerMessage
	errs chan error
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	sent []genai.LiveRealtimeInput
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		msgs: make(chan *genai.LiveServerMessage, 16),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}
}

func (f *fakeSession) SendRealtimeInput(in genai.LiveRealtimeInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, in)
	return nil
}

func (f *fakeSession) Receive() (*genai.LiveServerMessage, error) {
	select {
	case m := <-f.msgs:
		return m, nil
	case err := <-f.errs:
		return nil, err
	case <-f.done:
		return nil, errors.New("use of closed network connection")
	}
}

func (f *fakeSession) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func connect(t *testing.T, sess *fakeSession, cfg live.Config) (live.Conn, *genai.LiveConnectConfig, string) {
	t.Helper()
	var (
		gotCfg   *genai.LiveConnectConfig
		gotModel string
	)
	p := genailive.New(nil, genailive.WithDialer(func(_ context.Context, model string, c *genai.LiveConnectConfig) (genailive.Session, error) {
		gotModel, gotCfg = model, c
		return sess, nil
	}))
	c, err := p.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, gotCfg, gotModel
}

func nextEvent(t *testing.T, c live.Conn) live.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return nil
}

func TestConnectConfig(t *testing.T) {
	t.Parallel()

	cfg := genailive.ConnectConfig(live.Config{Voice: "Kore", Instructions: "be fun", Transcribe: true})
	if len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != genai.ModalityAudio {
		t.Errorf("modalities = %v", cfg.ResponseModalities)
	}
	if cfg.SpeechConfig == nil || cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Kore" {
		t.Errorf("speech config = %+v", cfg.SpeechConfig)
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "be fun" {
		t.Errorf("system instruction = %+v", cfg.SystemInstruction)
	}
	if cfg.InputAudioTranscription == nil || cfg.OutputAudioTranscription == nil {
		t.Error("transcription configs should be set")
	}

	bare := genailive.ConnectConfig(live.Config{})
	if bare.SpeechConfig != nil || bare.SystemInstruction != nil || bare.InputAudioTranscription != nil {
		t.Errorf("empty config should leave optional fields nil: %+v", bare)
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	pcmBytes := []byte{1, 0, 2, 0}
	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			Interrupted: true,
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{Data: pcmBytes, MIMEType: "audio/pcm;rate=24000"}},
				{Text: "ignored"},
				nil,
			}},
			InputTranscription:  &genai.Transcription{Text: "me"},
			OutputTranscription: &genai.Transcription{Text: "you"},
		},
	}

	events := genailive.Translate(msg)
	if len(events) != 4 {
		t.Fatalf("events = %d (%v); want 4", len(events), events)
	}
	if _, ok := events[0].(live.EventInterrupted); !ok {
		t.Errorf("events[0] = %T; want EventInterrupted", events[0])
	}
	a, ok := events[1].(live.EventAudio)
	if !ok || a.Data != base64.StdEncoding.EncodeToString(pcmBytes) || a.SampleRate != 24000 {
		t.Errorf("events[1] = %#v", events[1])
	}
	if tr, ok := events[2].(live.EventTranscript); !ok || tr.Role != live.RoleSelf || tr.Text != "me" {
		t.Errorf("events[2] = %#v", events[2])
	}
	if tr, ok := events[3].(live.EventTranscript); !ok || tr.Role != live.RoleRemote || tr.Text != "you" {
		t.Errorf("events[3] = %#v", events[3])
	}

	if got := genailive.Translate(&genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}); len(got) != 1 {
		t.Errorf("setupComplete events = %v; want [EventOpen]", got)
	}
	if got := genailive.Translate(nil); got != nil {
		t.Errorf("nil message events = %v", got)
	}
}

func TestConn_SendAndReceive(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	c, cfg, model := connect(t, sess, live.Config{Model: "custom", Voice: "Puck"})
	if model != "custom" {
		t.Errorf("model = %q; want custom", model)
	}
	if cfg.SpeechConfig == nil {
		t.Error("dialer should receive translated config")
	}

	sess.msgs <- &genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}
	if _, ok := nextEvent(t, c).(live.EventOpen); !ok {
		t.Fatal("expected EventOpen")
	}

	chunk := pcm.EncodeChunk([]float32{0.5}, pcm.CaptureSampleRate)
	if err := c.SendRealtimeInput(context.Background(), chunk); err != nil {
		t.Fatalf("SendRealtimeInput: %v", err)
	}
	sess.mu.Lock()
	sent := sess.sent
	sess.mu.Unlock()
	if len(sent) != 1 || sent[0].Audio == nil {
		t.Fatalf("sent = %+v", sent)
	}
	if sent[0].Audio.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("mime = %q", sent[0].Audio.MIMEType)
	}
	if got := base64.StdEncoding.EncodeToString(sent[0].Audio.Data); got != chunk.Data {
		t.Errorf("data = %q; want %q", got, chunk.Data)
	}
}

func TestConn_RemoteCloseAndError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		isClose bool
	}{
		{"eof", io.EOF, true},
		{"normal close", errors.New("websocket: close 1000 (normal)"), true},
		{"abnormal", errors.New("websocket: close 1011 (internal server error)"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sess := newFakeSession()
			c, _, _ := connect(t, sess, live.Config{})
			sess.errs <- tt.err

			ev := nextEvent(t, c)
			switch ev.(type) {
			case live.EventClose:
				if !tt.isClose {
					t.Errorf("got EventClose; want EventError")
				}
			case live.EventError:
				if tt.isClose {
					t.Errorf("got EventError; want EventClose")
				}
			default:
				t.Fatalf("unexpected event %T", ev)
			}
			if err := c.SendRealtimeInput(context.Background(), pcm.EncodeChunk(nil, 16000)); !errors.Is(err, live.ErrClosed) {
				t.Errorf("send after remote end = %v; want ErrClosed", err)
			}
		})
	}
}

func TestConn_CloseIsQuiet(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	c, _, _ := connect(t, sess, live.Config{})
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if ev, ok := <-c.Events(); ok {
		t.Errorf("local close should not emit events, got %T", ev)
	}
}

func TestConnect_NoClient(t *testing.T) {
	t.Parallel()
	if _, err := genailive.New(nil).Connect(context.Background(), live.Config{}); err == nil {
		t.Fatal("expected error without client or dialer")
	}
}

func TestConnect_DialError(t *testing.T) {
	t.Parallel()
	boom := errors.New("unauthenticated")
	p := genailive.New(nil, genailive.WithDialer(func(context.Context, string, *genai.LiveConnectConfig) (genailive.Session, error) {
		return nil, boom
	}))
	if _, err := p.Connect(context.Background(), live.Config{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v; want %v", err, boom)
	}
}
