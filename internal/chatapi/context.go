// ABOUTME: Run context resolution: run ID, session key, agent identity, model
// ABOUTME: Total resolution that always succeeds, falling back to configured defaults

package chatapi

import (
	"context"

	"github.com/google/uuid"

	"github.com/2389/openwire/internal/session"
)

// runIDPrefix tags run identifiers for human log scanning.
const runIDPrefix = "run-"

// RunContext carries the per-request identity derived before dispatch.
// RunID is globally unique for the lifetime of the process and is the
// correlation key for every downstream event.
type RunContext struct {
	RunID      string
	SessionKey string
	AgentID    string
	Model      string
}

// SessionRegistry binds session keys to stable gateway sessions.
type SessionRegistry interface {
	Ensure(ctx context.Context, key string) (*session.Session, error)
}

// resolveRunContext derives the run context from request fields and
// connection metadata. Resolution never fails: the session registry is
// best-effort (the key itself is the binding; persistence is advisory).
func (h *Handler) resolveRunContext(ctx context.Context, req *ChatCompletionRequest, remoteAddr string) RunContext {
	model := req.Model
	if model == "" {
		model = h.defaultModel
	}

	agentID := h.agentModels[model]
	if agentID == "" {
		agentID = h.defaultAgent
	}

	key := session.KeyForRequest(req.User, remoteAddr)
	if h.sessions != nil {
		if sess, err := h.sessions.Ensure(ctx, key); err != nil {
			h.logger.Warn("session registry unavailable", "session_key", key, "error", err)
		} else {
			h.logger.Debug("session resolved", "session_key", key, "session_id", sess.ID)
		}
	}

	return RunContext{
		RunID:      runIDPrefix + uuid.New().String(),
		SessionKey: key,
		AgentID:    agentID,
		Model:      model,
	}
}
