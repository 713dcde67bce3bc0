// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out scripted connections.
// Use Conn to push inbound events and inspect what was sent upstream.
//
// Example:
//
//	p := &mock.Provider{}
//	c, _ := p.Connect(ctx, live.Config{})
//	conn := p.Last()
//	conn.Emit(live.EventOpen{})
//	conn.Emit(live.EventAudio{Data: b64, SampleRate: 24000, Channels: 1})
package mock

import (
	"context"
	"sync"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live"
)

// Compile-time assertions.
var (
	_ live.Provider = (*Provider)(nil)
	_ live.Conn     = (*Conn)(nil)
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Cfg is the Config passed to Connect.
	Cfg live.Config
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// Gate, if non-nil, makes Connect block until it is closed or the
	// context is done.
	Gate chan struct{}

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	// Conns holds every connection handed out, in order.
	Conns []*Conn
}

// Connect records the call and returns a fresh [Conn] or ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.Config) (live.Conn, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	gate := p.Gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	c := NewConn()
	p.Conns = append(p.Conns, c)
	return c, nil
}

// Last returns the most recent connection, or nil.
func (p *Provider) Last() *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Conns) == 0 {
		return nil
	}
	return p.Conns[len(p.Conns)-1]
}

// Calls returns the number of Connect invocations.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// Conn is a mock implementation of live.Conn. Its event channel is closed by
// Close or [Conn.End].
type Conn struct {
	mu     sync.Mutex
	events chan live.Event
	ended  bool

	// SendErr, if non-nil, is returned by SendRealtimeInput.
	SendErr error

	// Sent records every chunk passed to SendRealtimeInput.
	Sent []audio.EncodedChunk

	// CloseCount is the number of times Close was called.
	CloseCount int

	// CloseGate, if non-nil, makes Close block until it is closed.
	CloseGate chan struct{}
}

// NewConn returns a Conn with a buffered event channel.
func NewConn() *Conn {
	return &Conn{events: make(chan live.Event, 64)}
}

// SendRealtimeInput records chunk and returns SendErr.
func (c *Conn) SendRealtimeInput(_ context.Context, chunk audio.EncodedChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return live.ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.Sent = append(c.Sent, chunk)
	return nil
}

// Events returns the inbound event channel.
func (c *Conn) Events() <-chan live.Event { return c.events }

// Emit pushes ev to the consumer. It returns false if the connection has
// already ended.
func (c *Conn) Emit(ev live.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return false
	}
	c.events <- ev
	return true
}

// End emits the final event ev (if not nil) and closes the event channel, as
// a transport does on remote close or fatal error.
func (c *Conn) End(ev live.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	if ev != nil {
		c.events <- ev
	}
	c.ended = true
	close(c.events)
}

// Close records the call and closes the event channel without emitting.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.CloseCount++
	gate := c.CloseGate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ended {
		c.ended = true
		close(c.events)
	}
	return nil
}

// Closed reports whether Close was called at least once.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CloseCount > 0
}

// SentChunks returns a copy of the recorded chunks.
func (c *Conn) SentChunks() []audio.EncodedChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audio.EncodedChunk(nil), c.Sent...)
}
