package model

// ChatPrompt is the body accepted by the chat endpoint. Prompt is nil when
// the field is absent or null.
type ChatPrompt struct {
	Prompt *string `json:"prompt"`
}

// ChatReply is the success body of the chat endpoint.
type ChatReply struct {
	Reply string `json:"reply"`
}

// ErrorReply is the failure body shared by the JSON endpoints.
type ErrorReply struct {
	Error string `json:"error"`
}

// ChatMessage is a single message of a completion request or choice.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the body sent to the completion endpoint.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// ChatCompletionResponse is the subset of the completion reply the gateway reads.
type ChatCompletionResponse struct {
	Choices []ChatChoice `json:"choices"`
}

// ChatChoice is one completion candidate.
type ChatChoice struct {
	Message ChatMessage `json:"message"`
}
