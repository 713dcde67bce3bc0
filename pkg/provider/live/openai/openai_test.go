package openai_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/pcm"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live/openai"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("readJSON: %v", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Errorf("readJSON unmarshal: %v", err)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// acceptSession consumes session.update and confirms it.
func acceptSession(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	var raw map[string]any
	readJSON(t, conn, &raw)
	writeJSON(t, conn, map[string]any{"type": "session.created"})
	writeJSON(t, conn, map[string]any{"type": "session.updated"})
}

func newProvider(srv *httptest.Server) *openai.Provider {
	return openai.New("test-key", openai.WithBaseURL(wsURL(srv)))
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

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestConnect_SendsSessionUpdate(t *testing.T) {
	t.Parallel()

	type update struct {
		Type    string `json:"type"`
		Session struct {
			Modalities              []string `json:"modalities"`
			Voice                   string   `json:"voice"`
			Instructions            string   `json:"instructions"`
			InputAudioFormat        string   `json:"input_audio_format"`
			OutputAudioFormat       string   `json:"output_audio_format"`
			InputAudioTranscription *struct {
				Model string `json:"model"`
			} `json:"input_audio_transcription"`
			TurnDetection struct {
				Type string `json:"type"`
			} `json:"turn_detection"`
		} `json:"session"`
	}

	received := make(chan update, 1)
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg update
		readJSON(t, conn, &msg)
		received <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	c, err := newProvider(srv).Connect(context.Background(), live.Config{
		Voice:        "alloy",
		Instructions: "Be fun.",
		Transcribe:   true,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	select {
	case msg := <-received:
		if msg.Type != "session.update" {
			t.Errorf("type = %q; want session.update", msg.Type)
		}
		s := msg.Session
		if s.Voice != "alloy" || s.Instructions != "Be fun." {
			t.Errorf("voice/instructions = %q/%q", s.Voice, s.Instructions)
		}
		if s.InputAudioFormat != "pcm16" || s.OutputAudioFormat != "pcm16" {
			t.Errorf("formats = %q/%q; want pcm16", s.InputAudioFormat, s.OutputAudioFormat)
		}
		if s.InputAudioTranscription == nil || s.InputAudioTranscription.Model == "" {
			t.Error("input_audio_transcription should be set")
		}
		if s.TurnDetection.Type != "server_vad" {
			t.Errorf("turn_detection = %q; want server_vad", s.TurnDetection.Type)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for session.update")
	}
}

func TestConnect_SendsAuthHeadersAndModel(t *testing.T) {
	t.Parallel()

	type req struct {
		auth, beta, model string
	}
	got := make(chan req, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		got <- req{r.Header.Get("Authorization"), r.Header.Get("OpenAI-Beta"), r.URL.Query().Get("model")}
		acceptSession(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("sk-test", openai.WithBaseURL(wsURL(srv)), openai.WithModel("gpt-realtime-mini"))
	c, err := p.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	select {
	case r := <-got:
		if r.auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.auth)
		}
		if r.beta != "realtime=v1" {
			t.Errorf("OpenAI-Beta = %q", r.beta)
		}
		if r.model != "gpt-realtime-mini" {
			t.Errorf("model = %q", r.model)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

func TestSendRealtimeInput_ResamplesTo24k(t *testing.T) {
	t.Parallel()

	appended := make(chan string, 1)
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSession(t, conn)
		var msg struct {
			Type  string `json:"type"`
			Audio string `json:"audio"`
		}
		readJSON(t, conn, &msg)
		if msg.Type != "input_audio_buffer.append" {
			t.Errorf("type = %q; want input_audio_buffer.append", msg.Type)
		}
		appended <- msg.Audio
		<-conn.CloseRead(context.Background()).Done()
	})

	c, err := newProvider(srv).Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	samples := make([]float32, 160) // 10ms at 16 kHz
	chunk := pcm.EncodeChunk(samples, pcm.CaptureSampleRate)
	if err := c.SendRealtimeInput(context.Background(), chunk); err != nil {
		t.Fatalf("SendRealtimeInput: %v", err)
	}

	select {
	case b64 := <-appended:
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got, want := len(raw)/2, 240; got != want {
			t.Errorf("samples = %d; want %d (10ms at 24 kHz)", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for append")
	}
}

func TestSendRealtimeInput_MalformedChunk(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSession(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})
	c, err := newProvider(srv).Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	err = c.SendRealtimeInput(context.Background(), pcmChunk("!!not-base64!!", 16000))
	if !errors.Is(err, pcm.ErrDecode) {
		t.Errorf("err = %v; want ErrDecode", err)
	}
}

func TestEvents_Translation(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSession(t, conn)
		writeJSON(t, conn, map[string]any{"type": "conversation.item.input_audio_transcription.completed", "transcript": " hello \n"})
		writeJSON(t, conn, map[string]any{"type": "response.audio.delta", "delta": "AAAA"})
		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.delta", "delta": "Hey "})
		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.delta", "delta": "there!"})
		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.done"})
		writeJSON(t, conn, map[string]any{"type": "input_audio_buffer.speech_started"})
		writeJSON(t, conn, map[string]any{"type": "rate_limits.updated"})
		writeJSON(t, conn, map[string]any{"type": "error", "error": map[string]any{"message": "bad things"}})
		<-conn.CloseRead(context.Background()).Done()
	})

	c, err := newProvider(srv).Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if _, ok := nextEvent(t, c).(live.EventOpen); !ok {
		t.Fatal("expected a single EventOpen first")
	}
	if ev, ok := nextEvent(t, c).(live.EventTranscript); !ok || ev.Role != live.RoleSelf || ev.Text != "hello" {
		t.Errorf("expected self transcript 'hello', got %#v", ev)
	}
	if ev, ok := nextEvent(t, c).(live.EventAudio); !ok || ev.Data != "AAAA" || ev.SampleRate != 24000 {
		t.Errorf("expected audio, got %#v", ev)
	}
	if ev, ok := nextEvent(t, c).(live.EventTranscript); !ok || ev.Role != live.RoleRemote || ev.Text != "Hey there!" {
		t.Errorf("expected assembled remote transcript, got %#v", ev)
	}
	if _, ok := nextEvent(t, c).(live.EventInterrupted); !ok {
		t.Error("expected EventInterrupted for speech_started")
	}
	ev, ok := nextEvent(t, c).(live.EventError)
	if !ok || !strings.Contains(ev.Err.Error(), "bad things") {
		t.Errorf("expected EventError, got %#v", ev)
	}

	select {
	case _, ok := <-c.Events():
		if ok {
			t.Error("event channel should close after fatal error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for close")
	}
}

func TestClose_IdempotentAndClosesEvents(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSession(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})
	c, err := newProvider(srv).Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Go(func() {
			if err := c.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
	}
	wg.Wait()

	for range c.Events() {
		// drain anything emitted before Close
	}
	if err := c.SendRealtimeInput(context.Background(), pcmChunk("AAAA", 24000)); !errors.Is(err, live.ErrClosed) {
		t.Errorf("send after close = %v; want ErrClosed", err)
	}
}

func TestConnect_CancelledContext(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newProvider(srv).Connect(ctx, live.Config{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func pcmChunk(data string, rate int) audio.EncodedChunk {
	return audio.EncodedChunk{Data: data, SampleRate: rate, Channels: 1}
}
