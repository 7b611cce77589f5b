// ABOUTME: HTTP handler for the OpenAI-compatible chat completions endpoint
// ABOUTME: Routes requests through normalization, run resolution, and dispatch

package chatapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/openwire/internal/bus"
	"github.com/2389/openwire/internal/dispatch"
)

// defaultMaxBodyBytes caps request bodies when no limit is configured.
const defaultMaxBodyBytes = 1 << 20

// completionIDPrefix tags completion identifiers in the protocol's style.
const completionIDPrefix = "chatcmpl-"

// emptyReplyPlaceholder stands in when dispatch completes without any final
// reply text, keeping the response shape valid for strict clients.
const emptyReplyPlaceholder = "(no response)"

// Options configures request handling defaults.
type Options struct {
	// DefaultModel is reported when the client omits the model field.
	DefaultModel string
	// DefaultAgent receives requests whose model has no explicit mapping.
	DefaultAgent string
	// AgentModels maps model names to agent IDs.
	AgentModels map[string]string
	// MaxBodyBytes caps the request body size. Zero selects the default.
	MaxBodyBytes int64
}

// Handler serves POST /v1/chat/completions.
type Handler struct {
	dispatcher dispatch.Dispatcher
	events     *bus.Bus
	sessions   SessionRegistry
	logger     *slog.Logger

	defaultModel string
	defaultAgent string
	agentModels  map[string]string
	maxBodyBytes int64
}

// NewHandler creates a chat completions handler. The session registry may be
// nil, in which case session keys are derived but not persisted.
func NewHandler(dispatcher dispatch.Dispatcher, events *bus.Bus, sessions SessionRegistry, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Handler{
		dispatcher:   dispatcher,
		events:       events,
		sessions:     sessions,
		logger:       logger.With("component", "chatapi"),
		defaultModel: opts.DefaultModel,
		defaultAgent: opts.DefaultAgent,
		agentModels:  opts.AgentModels,
		maxBodyBytes: maxBody,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", "invalid_request_error")
		return
	}
	if int64(len(body)) > h.maxBodyBytes {
		writeError(w, http.StatusBadRequest, "request body too large", "invalid_request_error")
		return
	}

	var req ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON in request body", "invalid_request_error")
		return
	}

	prompt := normalizeMessages(req.Messages)
	if prompt.Message == "" {
		// Nothing to dispatch: reject before any downstream work happens.
		writeError(w, http.StatusBadRequest, "no user message found in request", "invalid_request_error")
		return
	}

	rc := h.resolveRunContext(r.Context(), &req, r.RemoteAddr)
	msg := buildDispatchMessage(prompt, rc, time.Now())

	h.logger.Info("chat completion request",
		"run_id", rc.RunID,
		"session_key", rc.SessionKey,
		"agent_id", rc.AgentID,
		"model", rc.Model,
		"stream", req.Stream)

	if req.Stream {
		h.serveStream(w, r, rc, msg)
		return
	}
	h.serveCompletion(r.Context(), w, rc, msg)
}

// serveCompletion runs the blocking non-streaming path.
func (h *Handler) serveCompletion(ctx context.Context, w http.ResponseWriter, rc RunContext, msg *dispatch.Message) {
	sink := &replySink{}
	if err := h.dispatcher.Dispatch(ctx, msg, sink); err != nil {
		h.logger.Error("dispatch failed", "run_id", rc.RunID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process message: "+err.Error(), "server_error")
		return
	}

	content := sink.Text()
	if content == "" {
		content = emptyReplyPlaceholder
	}

	resp := ChatCompletion{
		ID:      completionIDPrefix + uuid.New().String(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   rc.Model,
		Choices: []Choice{{
			Index:        0,
			Message:      ResponseMessage{Role: "assistant", Content: content},
			FinishReason: finishReasonStop,
		}},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", "run_id", rc.RunID, "error", err)
	}
}

// serveStream runs the SSE path: subscribe to the run's events, dispatch in
// the background, and let the stream writer arbitrate which signal closes
// the response.
func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request, rc RunContext, msg *dispatch.Message) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", "server_error")
		return
	}

	events, subID := h.events.Subscribe(rc.RunID)
	defer h.events.Unsubscribe(rc.RunID, subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sw := newStreamWriter(w, flusher, completionIDPrefix+uuid.New().String(), rc.Model, time.Now().Unix(), h.logger)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sink := &replySink{}
	dispatchDone := make(chan error, 1)
	go func() {
		dispatchDone <- h.dispatcher.Dispatch(ctx, msg, sink)
	}()

	h.bridgeEvents(r.Context(), events, dispatchDone, sink, sw)
}

// writeError writes a protocol-shaped JSON error.
func writeError(w http.ResponseWriter, status int, msg, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{Message: msg, Type: errType}})
}
