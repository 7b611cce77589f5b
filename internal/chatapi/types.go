// ABOUTME: Wire types for the OpenAI-compatible chat-completion surface
// ABOUTME: Request fields are loosely typed and coerced by total, non-throwing functions

package chatapi

// ChatCompletionRequest is the JSON request body for POST /v1/chat/completions.
// Messages is deliberately untyped: clients send a wide variety of shapes and
// the normalizer coerces them without ever failing the request.
type ChatCompletionRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	User     string `json:"user"`
	Messages any    `json:"messages"`
}

// ResponseMessage is the assistant message inside a non-streaming choice.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Choice is one completion choice in a non-streaming response.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// Usage reports token accounting. The gateway does not meter tokens, so all
// fields are zero placeholders.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletion is the non-streaming response body.
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Delta is the incremental payload inside a streaming chunk choice.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChunkChoice is one choice in a streaming chunk. FinishReason is a pointer so
// non-terminal chunks serialize it as null.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// ChatCompletionChunk is one streamed SSE chunk body.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ErrorBody is the protocol-shaped error object.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error message and classification.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// asString coerces a value to string, returning "" for anything else.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asObject coerces a value to a JSON object, returning nil for anything else.
func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// asSlice coerces a value to a JSON array, returning nil for anything else.
func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}
