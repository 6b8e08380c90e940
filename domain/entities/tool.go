package entities

// ToolCall is a function invocation requested by the remote assistant
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult answers exactly one ToolCall. Failures are carried in Fields["error"].
type ToolResult struct {
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields"`
}

// Err returns the error message carried by the result, if any
func (r ToolResult) Err() string {
	if msg, ok := r.Fields["error"].(string); ok {
		return msg
	}
	return ""
}
