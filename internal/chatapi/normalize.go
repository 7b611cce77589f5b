// ABOUTME: Message normalizer converting the protocol's message array into a prompt
// ABOUTME: Total function: malformed entries are silently dropped, never an error

package chatapi

import (
	"strings"
)

// HistoryEntry is a rendered prior conversational turn.
type HistoryEntry struct {
	Sender string
	Body   string
}

// NormalizedPrompt is the gateway's internal prompt representation: the
// current message, optional system preamble, and prior-turn history.
type NormalizedPrompt struct {
	Message           string
	ExtraSystemPrompt string
	History           []HistoryEntry
}

// turn is one filtered conversational entry before current-turn selection.
type turn struct {
	role   string
	sender string
	body   string
}

// normalizeMessages converts the raw messages value into a NormalizedPrompt.
//
// Roles system and developer never enter the turn sequence; their bodies join
// into ExtraSystemPrompt. Roles outside the supported set are dropped without
// error. The current message is the last user/tool turn (or the last turn
// overall when none exists); everything before it becomes history, anything
// after it is ignored.
func normalizeMessages(raw any) NormalizedPrompt {
	var systemParts []string
	var turns []turn

	for _, el := range asSlice(raw) {
		obj := asObject(el)
		if obj == nil {
			continue
		}

		role := strings.TrimSpace(asString(obj["role"]))
		body := strings.TrimSpace(flattenContent(obj["content"]))
		if role == "" || body == "" {
			continue
		}

		switch role {
		case "system", "developer":
			systemParts = append(systemParts, body)
		case "user":
			turns = append(turns, turn{role: role, sender: "User", body: body})
		case "assistant":
			turns = append(turns, turn{role: role, sender: "Assistant", body: body})
		case "tool", "function":
			// function is the deprecated spelling of tool; fold them together
			// so current-turn selection treats both alike
			turns = append(turns, turn{role: "tool", sender: toolSender(obj), body: body})
		default:
			// Unsupported role: dropped entirely
		}
	}

	prompt := NormalizedPrompt{
		ExtraSystemPrompt: strings.Join(systemParts, "\n\n"),
	}

	if len(turns) == 0 {
		return prompt
	}

	// The current message is the last user or tool turn. If the transcript
	// ends with assistant turns only, fall back to the last turn overall.
	current := len(turns) - 1
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].role == "user" || turns[i].role == "tool" {
			current = i
			break
		}
	}

	prompt.Message = turns[current].body
	for _, t := range turns[:current] {
		prompt.History = append(prompt.History, HistoryEntry{Sender: t.sender, Body: t.body})
	}
	return prompt
}

// toolSender renders the sender label for a tool/function turn.
func toolSender(obj map[string]any) string {
	if name := strings.TrimSpace(asString(obj["name"])); name != "" {
		return "Tool:" + name
	}
	return "Tool"
}

// flattenContent reduces a message content value to a single string.
// Plain strings pass through; part arrays concatenate recognized text fields
// with newline separators, skipping unrecognized parts silently.
func flattenContent(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	parts := asSlice(v)
	if parts == nil {
		return ""
	}

	var texts []string
	for _, p := range parts {
		obj := asObject(p)
		if obj == nil {
			continue
		}
		if s := asString(obj["text"]); s != "" {
			texts = append(texts, s)
			continue
		}
		if s := asString(obj["input_text"]); s != "" {
			texts = append(texts, s)
		}
	}
	return strings.Join(texts, "\n")
}
