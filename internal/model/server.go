// Package model contains the core domain records managed by the toolgate registry.
package model

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultEndpoint is the invocation endpoint path assumed for servers
	// that don't declare one at registration time.
	DefaultEndpoint = "/run"

	// metadata keys persisted in the registry file.
	MetaKeyManualRegistration = "manual_registration"
	MetaKeyRegistrationDate   = "registration_date"
	MetaKeyPayloadStyle       = "payload_style"
)

// Only allow letters, numbers, hyphens, and underscores in server IDs.
var validServerID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ServerRecord describes a capability server known to the registry.
// The record's ID is the key under which it is persisted, so it is not
// serialized as part of the record itself.
type ServerRecord struct {
	ID string `json:"-"`

	Name        string `json:"name"`
	Description string `json:"description"`

	// URL is the base http(s) URL of the capability server.
	URL string `json:"url"`

	// Endpoint is the invocation endpoint path, relative to URL.
	Endpoint string `json:"mcp_endpoint"`

	// Capabilities holds the capability tags the server was registered with,
	// typically the names of the tools it advertised at registration time.
	Capabilities []string `json:"capabilities"`

	// Metadata is free-form registration metadata. Well-known keys are
	// declared as MetaKey* constants; anything else is passed through as-is.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewServerRecord creates a validated ServerRecord with registration metadata.
// manual indicates whether the server was registered by an operator (as
// opposed to auto-discovered).
func NewServerRecord(id, name, description, rawURL, endpoint string, capabilities []string, manual bool) (*ServerRecord, error) {
	r := &ServerRecord{
		ID:           id,
		Name:         name,
		Description:  description,
		URL:          rawURL,
		Endpoint:     endpoint,
		Capabilities: capabilities,
		Metadata: map[string]any{
			MetaKeyManualRegistration: manual,
			MetaKeyRegistrationDate:   time.Now().UTC().Format(time.RFC3339),
		},
	}
	if r.Endpoint == "" {
		r.Endpoint = DefaultEndpoint
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the record's invariants: a well-formed ID, an absolute
// http(s) base URL and a rooted endpoint path.
func (r *ServerRecord) Validate() error {
	if err := ValidateServerID(r.ID); err != nil {
		return err
	}
	if err := validateServerURL(r.URL); err != nil {
		return err
	}
	if r.Endpoint != "" && !strings.HasPrefix(r.Endpoint, "/") {
		return fmt.Errorf("invalid endpoint path '%s': must start with '/'", r.Endpoint)
	}
	return nil
}

// ValidateServerID checks if the server ID is valid.
func ValidateServerID(id string) error {
	if id == "" {
		return errors.New("server id must not be empty")
	}
	if !validServerID.MatchString(id) {
		return fmt.Errorf("invalid server id: '%s' must follow the regular expression %s", id, validServerID)
	}
	return nil
}

func validateServerURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid server URL '%s': %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid server URL '%s': scheme must be http or https", rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid server URL '%s': missing host", rawURL)
	}
	return nil
}

// SchemaURL returns the absolute URL of the server's schema endpoint.
func (r *ServerRecord) SchemaURL() string {
	return strings.TrimRight(r.URL, "/") + "/schema"
}

// InvokeURL returns the absolute URL of the server's invocation endpoint.
func (r *ServerRecord) InvokeURL() string {
	endpoint := r.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return strings.TrimRight(r.URL, "/") + endpoint
}

// PayloadStyle returns the invocation payload dialect declared in the
// record's metadata, or an empty string if none is set.
func (r *ServerRecord) PayloadStyle() string {
	if r.Metadata == nil {
		return ""
	}
	s, _ := r.Metadata[MetaKeyPayloadStyle].(string)
	return s
}

// RegisteredAt returns the registration timestamp recorded in metadata.
// The zero time is returned when the record carries no parseable timestamp,
// which can happen for registry files written by hand.
func (r *ServerRecord) RegisteredAt() time.Time {
	if r.Metadata == nil {
		return time.Time{}
	}
	raw, _ := r.Metadata[MetaKeyRegistrationDate].(string)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clone returns a deep copy of the record so that callers never observe
// mutations made to the registry's internal state.
func (r *ServerRecord) Clone() *ServerRecord {
	clone := *r
	if r.Capabilities != nil {
		clone.Capabilities = make([]string, len(r.Capabilities))
		copy(clone.Capabilities, r.Capabilities)
	}
	if r.Metadata != nil {
		clone.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
