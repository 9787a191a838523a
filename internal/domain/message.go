package domain

// Chat roles. History supplied by the caller only carries user and
// assistant turns; system is used internally when composing prompts.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn exchanged with the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
