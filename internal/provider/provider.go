// Package provider abstracts the upstream LLM APIs behind a single
// interface: given a trimmed conversation, produce one plain-text reply.
package provider

import "context"

// Message roles. Order within a conversation is turn order and must be
// preserved.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates a reply for a conversation. Implementations own their
// request shaping, response normalization and retry behavior; callers are
// responsible for trimming history to MaxHistory entries before calling
// Complete.
type Provider interface {
	// Label identifies the provider in responses and metrics.
	Label() string
	// MaxHistory is how many trailing conversation turns the provider
	// accepts per call.
	MaxHistory() int
	// Complete returns the generated reply text. The text is returned as
	// produced by the upstream; whitespace trimming happens at the
	// response boundary.
	Complete(ctx context.Context, messages []Message) (string, error)
}
