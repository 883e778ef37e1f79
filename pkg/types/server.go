// Package types contains the API types exchanged between toolgate clients and the server.
package types

// Server represents a capability server registered in the toolgate registry.
type Server struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	URL      string `json:"url"`
	Endpoint string `json:"mcp_endpoint"`

	Capabilities []string       `json:"capabilities"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// RegisterServerInput is the input structure for registering a capability
// server. It is also the basis for the JSON/YAML configuration file accepted
// by the `toolgate register` command.
type RegisterServerInput struct {
	// ID (mandatory) is the unique identifier of the server within the registry.
	ID string `json:"id" yaml:"id"`

	// Name is a human-friendly display name. Defaults to the ID.
	Name string `json:"name,omitempty" yaml:"name"`

	Description string `json:"description,omitempty" yaml:"description"`

	// URL (mandatory) is the base http/https URL of the capability server.
	URL string `json:"url" yaml:"url"`

	// Endpoint is the invocation endpoint path (default: /run).
	Endpoint string `json:"mcp_endpoint,omitempty" yaml:"mcp_endpoint"`

	// Capabilities is the list of capability tags to record for the server.
	// When the register command is run with --validate, this list is filled
	// from the tool names the server advertises.
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities"`

	// PayloadStyle selects the invocation payload dialect for this server.
	// Valid values are "name" (default), "tool" and "action".
	PayloadStyle string `json:"payload_style,omitempty" yaml:"payload_style"`

	// Force replaces an existing registration with the same ID.
	Force bool `json:"-" yaml:"-"`
}

// ServerMetadata represents the server metadata response.
type ServerMetadata struct {
	Version string `json:"version"`
}
