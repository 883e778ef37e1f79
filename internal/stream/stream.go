// Package stream decodes the newline-delimited JSON event streams emitted by
// capability servers that use the streaming initialization handshake.
package stream

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Event types recognized in a handshake stream. A "tools" or "close" event
// terminates the exchange.
const (
	EventInit  = "init"
	EventTools = "tools"
	EventClose = "close"
)

// ErrNoTerminalEvent is returned when the stream ends before a terminal
// ("tools" or "close") event is observed.
var ErrNoTerminalEvent = errors.New("stream closed without a terminal event")

// Event is a single message on the stream.
type Event struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// IsTerminal reports whether the event ends the handshake.
func (e *Event) IsTerminal() bool {
	return e.Type == EventTools || e.Type == EventClose
}

// HandshakeConfig identifies the client in the handshake query string.
type HandshakeConfig struct {
	ClientID      string `json:"client_id"`
	ClientVersion string `json:"client_version"`
}

// HandshakeURL appends the base64-encoded client config to the endpoint URL
// as the `config` query parameter.
func HandshakeURL(endpoint string, cfg HandshakeConfig) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + "config=" + url.QueryEscape(encoded), nil
}

// InitMessage returns the JSON body that opens a handshake.
func InitMessage() []byte {
	return []byte(`{"type":"init","body":{}}`)
}

// Reader decodes events line by line. Lines that are not valid JSON are
// logged and skipped rather than failing the stream.
type Reader struct {
	scanner *bufio.Scanner
	logger  *zap.Logger
}

// NewReader wraps r in an event reader.
func NewReader(r io.Reader, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	scanner := bufio.NewScanner(r)
	// some servers send large tool lists in a single event
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: scanner, logger: logger}
}

// Next returns the next decodable event, or io.EOF when the stream ends.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			r.logger.Warn("skipping undecodable stream line", zap.String("line", line), zap.Error(err))
			continue
		}
		return &event, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// ReadUntilTerminal consumes events until a terminal one is found.
// A stream that ends first yields ErrNoTerminalEvent.
func (r *Reader) ReadUntilTerminal() (*Event, error) {
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil, ErrNoTerminalEvent
		}
		if err != nil {
			return nil, err
		}
		if event.IsTerminal() {
			return event, nil
		}
	}
}
