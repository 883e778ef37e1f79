package model

// ParamSpec describes a single parameter accepted by a tool.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`

	// Default is the value assumed when the parameter is omitted.
	// Required parameters never carry a default.
	Default any `json:"default,omitempty"`
}

// ToolDescriptor describes a tool advertised by a capability server.
// A descriptor belongs to exactly one server; the name is unique only
// within that server's schema.
type ToolDescriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Params      []ParamSpec `json:"parameters,omitempty"`
}

// Param returns the parameter spec with the given name, if declared.
func (t *ToolDescriptor) Param(name string) (*ParamSpec, bool) {
	for i := range t.Params {
		if t.Params[i].Name == name {
			return &t.Params[i], true
		}
	}
	return nil, false
}

// RequiredParams returns the names of all required parameters, in schema order.
func (t *ToolDescriptor) RequiredParams() []string {
	var required []string
	for _, p := range t.Params {
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return required
}
