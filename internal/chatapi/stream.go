// ABOUTME: Streaming protocol state machine owning the SSE output stream
// ABOUTME: Guarantees role-before-content ordering and exactly-once terminal sentinel

package chatapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// doneSentinel terminates every streamed response.
const doneSentinel = "[DONE]"

// finishReasonStop is the finish reason reported on the terminal chunk.
const finishReasonStop = "stop"

// streamWriter drives one streamed chat completion through its states:
// idle, role announced, streaming, closed. Multiple signals race to close the
// stream (lifecycle end/error, dispatch completion, client disconnect,
// dispatch error); the closed flag makes every path after the first a no-op,
// so exactly one terminal sentinel is ever written and nothing follows it.
//
// All transitions are serialized by the mutex: the bridge goroutine and the
// request goroutine both write through here.
type streamWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	logger  *slog.Logger

	id      string
	model   string
	created int64

	wroteRole       bool
	closed          bool
	agentRunStarted bool

	done chan struct{}
}

func newStreamWriter(w io.Writer, flusher http.Flusher, id, model string, created int64, logger *slog.Logger) *streamWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &streamWriter{
		w:       w,
		flusher: flusher,
		logger:  logger,
		id:      id,
		model:   model,
		created: created,
		done:    make(chan struct{}),
	}
}

// Done is closed exactly once when the stream reaches its terminal state.
func (sw *streamWriter) Done() <-chan struct{} {
	return sw.done
}

// MarkAgentRunStarted records that a model-backed run began for this request.
// The completion fallback uses this to tell slash-command dispatches (which
// never publish lifecycle events) apart from agent runs.
func (sw *streamWriter) MarkAgentRunStarted() {
	sw.mu.Lock()
	sw.agentRunStarted = true
	sw.mu.Unlock()
}

// WriteDelta emits one content chunk, announcing the role first if this is
// the first content of the stream. Deltas arriving after closure are dropped.
func (sw *streamWriter) WriteDelta(text string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return
	}
	sw.writeRoleLocked()
	sw.writeChunkLocked(Delta{Content: text}, nil)
}

// FinishFromLifecycle closes the stream after a lifecycle end or error event:
// finish chunk, then the terminal sentinel.
func (sw *streamWriter) FinishFromLifecycle() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return
	}
	sw.finishLocked()
}

// FinishFromCompletion handles dispatch completing without any lifecycle
// traffic: the pipeline resolved the message synchronously (a slash command),
// so the accumulated final text is the whole answer. With an agent run in
// flight this is a no-op; the lifecycle end event closes the stream instead,
// preserving delta ordering.
func (sw *streamWriter) FinishFromCompletion(parts []string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed || sw.agentRunStarted {
		return
	}

	if len(parts) > 0 {
		sw.writeRoleLocked()
		sw.writeChunkLocked(Delta{Content: strings.Join(parts, "\n\n")}, nil)
	}
	sw.finishLocked()
}

// FinishFromError surfaces a dispatch failure in-band: one content chunk with
// the error text, a finish chunk, then the sentinel. The transcript stays
// well-formed so clients never see an abrupt connection reset.
func (sw *streamWriter) FinishFromError(msg string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return
	}

	sw.writeRoleLocked()
	sw.writeChunkLocked(Delta{Content: msg}, nil)
	sw.finishLocked()
}

// Abort closes the stream without writing: the client is already gone.
func (sw *streamWriter) Abort() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return
	}
	sw.closed = true
	close(sw.done)
}

// writeRoleLocked announces the assistant role once, before any content.
func (sw *streamWriter) writeRoleLocked() {
	if sw.wroteRole {
		return
	}
	sw.wroteRole = true
	sw.writeChunkLocked(Delta{Role: "assistant"}, nil)
}

// finishLocked writes the finish chunk and the terminal sentinel, then marks
// the stream closed. Callers must hold the mutex and have checked closed.
func (sw *streamWriter) finishLocked() {
	reason := finishReasonStop
	sw.writeChunkLocked(Delta{}, &reason)
	fmt.Fprintf(sw.w, "data: %s\n\n", doneSentinel)
	sw.flushLocked()

	sw.closed = true
	close(sw.done)
}

// writeChunkLocked marshals and writes one SSE chunk line.
func (sw *streamWriter) writeChunkLocked(delta Delta, finishReason *string) {
	chunk := ChatCompletionChunk{
		ID:      sw.id,
		Object:  "chat.completion.chunk",
		Created: sw.created,
		Model:   sw.model,
		Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finishReason}},
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		sw.logger.Error("failed to marshal chunk", "error", err)
		return
	}

	fmt.Fprintf(sw.w, "data: %s\n\n", data)
	sw.flushLocked()
}

func (sw *streamWriter) flushLocked() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}
