package tools

// Tool describes a callable operation exposed to the assistant. Parameters
// holds a JSON Schema object describing the accepted arguments.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
