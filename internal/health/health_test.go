package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ramadascd1-rgb/FUNtastic/internal/resilience"
)

func serve(t *testing.T, h *Handler, path string, ctx context.Context) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	req := httptest.NewRequest("GET", path, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func pass(context.Context) error { return nil }

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "broken", Check: func(context.Context) error { return errors.New("down") }})

	code, body := serve(t, h, "/healthz", context.Background())
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %+v", code, body)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{},
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "content", Check: pass},
				{Name: "buddy", Check: pass},
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{"content": "ok", "buddy": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "content", Check: func(context.Context) error { return errors.New("quota") }},
				{Name: "buddy", Check: pass},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{"content": "fail: quota", "buddy": "ok"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, body := serve(t, New(tc.checkers...), "/readyz", context.Background())
			if code != tc.wantStatus || body.Status != tc.wantBody {
				t.Errorf("readyz = %d %q, want %d %q", code, body.Status, tc.wantStatus, tc.wantBody)
			}
			if len(body.Checks) != len(tc.wantChecks) {
				t.Errorf("checks = %v, want %v", body.Checks, tc.wantChecks)
			}
			for k, v := range tc.wantChecks {
				if body.Checks[k] != v {
					t.Errorf("check %q = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestReadyz_RunsChecksConcurrently(t *testing.T) {
	t.Parallel()
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	block := func(ctx context.Context) error {
		started <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	go func() {
		<-started
		<-started
		close(release)
	}()

	h := New(Checker{Name: "a", Check: block}, Checker{Name: "b", Check: block})
	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
		done <- rec.Code
	}()
	select {
	case code := <-done:
		if code != http.StatusOK {
			t.Errorf("status = %d, want 200", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("checks did not run concurrently")
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, _ := serve(t, h, "/readyz", ctx)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestBreakerCheck(t *testing.T) {
	t.Parallel()
	es := func(states ...resilience.State) func() []resilience.EntryStatus {
		return func() []resilience.EntryStatus {
			out := make([]resilience.EntryStatus, len(states))
			for i, s := range states {
				out[i] = resilience.EntryStatus{Name: []string{"gemini", "openai"}[i], State: s}
			}
			return out
		}
	}

	tests := []struct {
		name    string
		status  func() []resilience.EntryStatus
		wantErr bool
	}{
		{"all closed", es(resilience.StateClosed, resilience.StateClosed), false},
		{"primary open", es(resilience.StateOpen, resilience.StateClosed), false},
		{"half-open counts", es(resilience.StateOpen, resilience.StateHalfOpen), false},
		{"all open", es(resilience.StateOpen, resilience.StateOpen), true},
		{"empty", es(), true},
	}
	for _, tc := range tests {
		err := BreakerCheck("content", tc.status).Check(context.Background())
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}

	err := BreakerCheck("content", es(resilience.StateOpen, resilience.StateOpen)).Check(context.Background())
	if !errors.Is(err, ErrAllCircuitsOpen) || !strings.Contains(err.Error(), "gemini, openai") {
		t.Errorf("err = %v", err)
	}
}
