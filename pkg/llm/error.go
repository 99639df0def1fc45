// Package llm holds the conversation model shared by the store, the exchange
// and the completion backends, plus the Ollama-compatible wire types.
package llm

// ErrorResponse is the JSON body returned for rejected HTTP requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
