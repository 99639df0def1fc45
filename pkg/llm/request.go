package llm

// ChatRequest represents a chat completion request (Ollama-compatible).
type ChatRequest struct {
	Model    string `json:"model"`            // Model name (e.g., "llama3.2", "mistral")
	Messages []Turn `json:"messages"`         // Conversation history
	Stream   *bool  `json:"stream,omitempty"` // Ollama streams unless told otherwise

	// Generation options
	Options *Options `json:"options,omitempty"`

	// Keep model loaded
	KeepAlive string `json:"keep_alive,omitempty"`
}
