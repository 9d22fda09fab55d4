package relay

import "github.com/echoes-app/demo-relay/internal/provider"

// ChatMessage is one inbound conversation turn.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

type chatRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required,min=1,dive"`
}

type chatResponse struct {
	Message           string `json:"message"`
	IsDemoMode        bool   `json:"isDemoMode"`
	AIProvider        string `json:"aiProvider"`
	RequestsRemaining int    `json:"requestsRemaining"`
}

type verifyRequest struct {
	Password string `json:"password"`
}

// verifyResponse is the success body. RequestsRemaining stays present even
// at zero, so clients can tell "quota exhausted" apart from a missing field.
type verifyResponse struct {
	Valid             bool   `json:"valid"`
	Message           string `json:"message"`
	RequestsRemaining int    `json:"requestsRemaining"`
	AIProvider        string `json:"aiProvider"`
}

type verifyRejection struct {
	Valid bool   `json:"valid"`
	Error string `json:"error"`
}

type healthResponse struct {
	Status         string `json:"status"`
	DemoActive     bool   `json:"demoActive"`
	RequestsToday  int    `json:"requestsToday"`
	DailyLimit     int    `json:"dailyLimit"`
	RemainingToday int    `json:"remainingToday"`
	AIProvider     string `json:"aiProvider"`
}

// trimHistory keeps the most recent n turns, preserving order.
func trimHistory(messages []ChatMessage, n int) []ChatMessage {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

func toProviderMessages(messages []ChatMessage) []provider.Message {
	out := make([]provider.Message, len(messages))
	for i, m := range messages {
		out[i] = provider.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
