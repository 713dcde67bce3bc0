package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ramadascd1-rgb/FUNtastic/internal/buddy"
	"github.com/ramadascd1-rgb/FUNtastic/internal/content"
	"github.com/ramadascd1-rgb/FUNtastic/internal/health"
	"github.com/ramadascd1-rgb/FUNtastic/internal/observe"
)

// maxPromptBody caps the JSON body of content requests.
const maxPromptBody = 64 << 10

var errBuddyDisabled = errors.New("buddy is disabled: no live provider or audio devices")

type errorResponse struct {
	Error    string          `json:"error"`
	Snapshot *buddy.Snapshot `json:"snapshot,omitempty"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type captionResponse struct {
	Caption string `json:"caption"`
}

type mediaResponse struct {
	MIMEType string `json:"mime_type"`
	URI      string `json:"uri,omitempty"`
	DataURL  string `json:"data_url"`
}

type postResponse struct {
	Kind    content.Kind   `json:"kind"`
	Prompt  string         `json:"prompt"`
	Caption string         `json:"caption"`
	Image   *mediaResponse `json:"image,omitempty"`
	Video   *mediaResponse `json:"video,omitempty"`
}

func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/buddy/start", a.handleBuddyStart)
	mux.HandleFunc("POST /v1/buddy/stop", a.handleBuddyStop)
	mux.HandleFunc("GET /v1/buddy", a.handleBuddySnapshot)
	mux.HandleFunc("GET /v1/buddy/events", a.handleBuddyEvents)

	mux.HandleFunc("POST /v1/content/{kind}", a.handleContent)
	mux.HandleFunc("GET /v1/content/backends", a.handleContentBackends)

	var checks []health.Checker
	if a.providers.ContentStatus != nil {
		checks = append(checks, health.BreakerCheck("content", a.providers.ContentStatus))
	}
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", a.metricsHandler)
	return mux
}

// ── Buddy ─────────────────────────────────────────────────────────────────────

func (a *App) handleBuddyStart(w http.ResponseWriter, r *http.Request) {
	if a.buddy == nil {
		writeError(w, http.StatusServiceUnavailable, errBuddyDisabled, nil)
		return
	}
	// The session outlives the request; only the dial is bounded.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), connectTimeout)
	defer cancel()

	err := a.buddy.Start(ctx)
	snap := a.buddy.Snapshot()
	if err != nil {
		writeError(w, buddyErrorStatus(err), err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func buddyErrorStatus(err error) int {
	switch {
	case errors.Is(err, buddy.ErrAlreadyActive), errors.Is(err, buddy.ErrStopped):
		return http.StatusConflict
	case errors.Is(err, buddy.ErrAcquisition):
		return http.StatusServiceUnavailable
	case errors.Is(err, buddy.ErrConnection):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (a *App) handleBuddyStop(w http.ResponseWriter, _ *http.Request) {
	if a.buddy == nil {
		writeError(w, http.StatusServiceUnavailable, errBuddyDisabled, nil)
		return
	}
	err := a.buddy.Stop()
	snap := a.buddy.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *App) handleBuddySnapshot(w http.ResponseWriter, _ *http.Request) {
	if a.buddy == nil {
		writeError(w, http.StatusServiceUnavailable, errBuddyDisabled, nil)
		return
	}
	writeJSON(w, http.StatusOK, a.buddy.Snapshot())
}

// handleBuddyEvents streams snapshots as server-sent events, starting with
// the current one.
func (a *App) handleBuddyEvents(w http.ResponseWriter, r *http.Request) {
	if a.buddy == nil {
		writeError(w, http.StatusServiceUnavailable, errBuddyDisabled, nil)
		return
	}
	rc := http.NewResponseController(w)
	updates, unsubscribe := a.events.subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	send := func(s buddy.Snapshot) bool {
		data, err := json.Marshal(s)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if !send(a.buddy.Snapshot()) {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-a.closing:
			return
		case s, ok := <-updates:
			if !ok || !send(s) {
				return
			}
		}
	}
}

// ── Content ───────────────────────────────────────────────────────────────────

func (a *App) handleContent(w http.ResponseWriter, r *http.Request) {
	kind := content.Kind(r.PathValue("kind"))
	switch kind {
	case content.KindImage, content.KindVideo, content.KindCaption:
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown content kind %q", kind), nil)
		return
	}

	var req promptRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPromptBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err), nil)
		return
	}

	ctx := r.Context()
	log := observe.Logger(ctx)

	if kind == content.KindCaption {
		caption, err := a.content.SuggestCaption(ctx, req.Prompt)
		if err != nil {
			writeError(w, contentErrorStatus(err), err, nil)
			return
		}
		writeJSON(w, http.StatusOK, captionResponse{Caption: caption})
		return
	}

	progress := func(msg string) { log.Info("content progress", "kind", kind, "msg", msg) }
	post, err := a.content.Create(ctx, kind, req.Prompt, progress)
	if err != nil {
		writeError(w, contentErrorStatus(err), err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func contentErrorStatus(err error) int {
	switch {
	case errors.Is(err, content.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, content.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func toPostResponse(p content.Post) postResponse {
	out := postResponse{Kind: p.Kind, Prompt: p.Prompt, Caption: p.Caption}
	if p.Image != nil {
		out.Image = &mediaResponse{MIMEType: p.Image.MIMEType, DataURL: p.Image.DataURL()}
	}
	if p.Video != nil {
		out.Video = &mediaResponse{
			MIMEType: p.Video.MIMEType,
			URI:      p.Video.URI,
			DataURL:  "data:" + p.Video.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Video.Data),
		}
	}
	return out
}

func (a *App) handleContentBackends(w http.ResponseWriter, _ *http.Request) {
	if a.providers.ContentStatus == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, a.providers.ContentStatus())
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error, snap *buddy.Snapshot) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Snapshot: snap})
}
