// ABOUTME: Bridge between the run event bus and the streaming state machine
// ABOUTME: Single consumer loop that arbitrates which signal closes the stream

package chatapi

import (
	"context"

	"github.com/2389/openwire/internal/bus"
)

// bridgeEvents consumes the run's event channel and drives the stream writer
// until the stream closes or the client disconnects. It is the only reader of
// the events channel, which makes the completion-fallback decision sound: any
// event published before dispatch returned is applied before the fallback
// inspects the run state.
func (h *Handler) bridgeEvents(ctx context.Context, events <-chan bus.Event, dispatchDone <-chan error, sink *replySink, sw *streamWriter) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.applyEvent(ev, sw)

		case err := <-dispatchDone:
			if err != nil {
				// A failure after the client went away is the disconnect
				// path, not an error to report: the connection is dead.
				if ctx.Err() != nil {
					sw.Abort()
					return
				}
				h.logger.Error("dispatch failed", "error", err)
				sw.FinishFromError("Error: " + err.Error())
				return
			}
			// Dispatch completed cleanly. Apply everything it already
			// published, then close the stream only if no agent run began;
			// otherwise the lifecycle end event closes it.
			h.drainPending(events, sw)
			sw.FinishFromCompletion(sink.Parts())
			dispatchDone = nil

		case <-ctx.Done():
			h.logger.Debug("client disconnected")
			sw.Abort()
			return

		case <-sw.Done():
			return
		}
	}
}

// drainPending applies events already queued on the channel without blocking.
func (h *Handler) drainPending(events <-chan bus.Event, sw *streamWriter) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.applyEvent(ev, sw)
		default:
			return
		}
	}
}

// applyEvent maps one bus event onto the stream writer.
func (h *Handler) applyEvent(ev bus.Event, sw *streamWriter) {
	switch ev.Stream {
	case bus.StreamAssistant:
		if ev.Assistant == nil {
			return
		}
		// Prefer the incremental delta; fall back to the full snapshot for
		// producers that only publish complete text.
		text := ev.Assistant.Delta
		if text == "" {
			text = ev.Assistant.Text
		}
		if text == "" {
			return
		}
		sw.WriteDelta(text)

	case bus.StreamLifecycle:
		if ev.Lifecycle == nil {
			return
		}
		switch ev.Lifecycle.Phase {
		case bus.PhaseStart:
			sw.MarkAgentRunStarted()
		case bus.PhaseEnd:
			sw.FinishFromLifecycle()
		case bus.PhaseError:
			h.logger.Warn("run ended with error", "run_id", ev.RunID, "error", ev.Lifecycle.Error)
			sw.FinishFromLifecycle()
		}
	}
}
