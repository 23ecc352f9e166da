package domain

import "fmt"

// Role identifies the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// UnmarshalText rejects roles outside the closed set.
func (r *Role) UnmarshalText(b []byte) error {
	v := Role(b)
	if !v.Valid() {
		return fmt.Errorf("unknown role %q", string(b))
	}
	*r = v
	return nil
}

// Message is a single transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
