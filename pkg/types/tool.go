package types

// ToolParam describes a single parameter of a tool, as advertised by a
// capability server's schema.
type ToolParam struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// Tool describes a tool advertised by a capability server.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  []ToolParam `json:"parameters,omitempty"`
}

// ToolList is the response of the tool listing endpoint. Freshness reports
// the cache state of the schema the list came from.
type ToolList struct {
	Tools     []Tool `json:"tools"`
	Freshness string `json:"freshness,omitempty"`
}

// RegistryInfo summarizes the registry contents.
type RegistryInfo struct {
	Servers      int `json:"servers"`
	Capabilities int `json:"capabilities"`
}
