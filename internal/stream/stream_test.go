package stream

import (
	"encoding/base64"
	"io"
	"net/url"
	"strings"
	"testing"
)

func TestReaderNext(t *testing.T) {
	input := `{"type":"status","body":{"ok":true}}
not json at all
{"type":"tools","body":[{"name":"x"}]}
`
	r := NewReader(strings.NewReader(input), nil)

	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v, want nil", err)
	}
	if first.Type != "status" {
		t.Errorf("first event type = %q, want %q", first.Type, "status")
	}

	// the undecodable line must be skipped, not returned as an error
	second, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v, want nil", err)
	}
	if second.Type != EventTools {
		t.Errorf("second event type = %q, want %q", second.Type, EventTools)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next() at end = %v, want io.EOF", err)
	}
}

func TestReadUntilTerminal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
		wantErr  error
	}{
		{
			name:     "tools event",
			input:    `{"type":"tools","body":[{"name":"x"}]}` + "\n",
			wantType: EventTools,
		},
		{
			name:     "close event after noise",
			input:    "garbage\n" + `{"type":"ping"}` + "\n" + `{"type":"close"}` + "\n",
			wantType: EventClose,
		},
		{
			name:    "no terminal event",
			input:   `{"type":"ping"}` + "\n" + `{"type":"pong"}` + "\n",
			wantErr: ErrNoTerminalEvent,
		},
		{
			name:    "empty stream",
			input:   "",
			wantErr: ErrNoTerminalEvent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.input), nil)
			event, err := r.ReadUntilTerminal()
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Fatalf("ReadUntilTerminal() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadUntilTerminal() error = %v, want nil", err)
			}
			if event.Type != tt.wantType {
				t.Errorf("event type = %q, want %q", event.Type, tt.wantType)
			}
		})
	}
}

func TestHandshakeURL(t *testing.T) {
	u, err := HandshakeURL("http://localhost:9/run", HandshakeConfig{ClientID: "toolgate", ClientVersion: "1.0"})
	if err != nil {
		t.Fatalf("HandshakeURL() error = %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("result is not a valid URL: %v", err)
	}
	encoded := parsed.Query().Get("config")
	if encoded == "" {
		t.Fatal("config query parameter is missing")
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("config is not valid base64: %v", err)
	}
	if want := `{"client_id":"toolgate","client_version":"1.0"}`; string(decoded) != want {
		t.Errorf("decoded config = %s, want %s", decoded, want)
	}
}

func TestHandshakeURLPreservesExistingQuery(t *testing.T) {
	u, err := HandshakeURL("http://localhost:9/run?debug=1", HandshakeConfig{ClientID: "c", ClientVersion: "1"})
	if err != nil {
		t.Fatalf("HandshakeURL() error = %v", err)
	}
	if !strings.Contains(u, "debug=1") || !strings.Contains(u, "&config=") {
		t.Errorf("query string not preserved: %s", u)
	}
}
