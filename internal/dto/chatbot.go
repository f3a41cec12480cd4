package dto

// ChatHistoryEntry is one previous turn of the conversation as kept by the client.
type ChatHistoryEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
	Kind string `json:"kind,omitempty"`
}

// ChatRequest is the chatbot payload.
type ChatRequest struct {
	Message string             `json:"message"`
	History []ChatHistoryEntry `json:"history"`
}

// ChatResponse carries the assistant reply.
type ChatResponse struct {
	Reply  string `json:"reply"`
	Cached bool   `json:"cached"`
}
