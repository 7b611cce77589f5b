// ABOUTME: HTTP handlers for health probes and the model listing endpoint
// ABOUTME: Everything except health requires bearer auth when configured

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// ModelInfo describes one model in the /v1/models listing.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the JSON response for GET /v1/models.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the session store answers queries.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	n, err := g.sessions.Count(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("session store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", n)
}

// handleListModels returns the configured model names in the protocol's list
// shape. The default model always appears first.
func (g *Gateway) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	created := time.Now().Unix()
	list := ModelList{Object: "list"}
	list.Data = append(list.Data, ModelInfo{
		ID:      g.config.Completions.DefaultModel,
		Object:  "model",
		Created: created,
		OwnedBy: "openwire",
	})
	names := make([]string, 0, len(g.config.Completions.AgentModels))
	for name := range g.config.Completions.AgentModels {
		if name == g.config.Completions.DefaultModel {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		list.Data = append(list.Data, ModelInfo{
			ID:      name,
			Object:  "model",
			Created: created,
			OwnedBy: "openwire",
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(list); err != nil {
		g.logger.Error("failed to encode model list", "error", err)
	}
}
