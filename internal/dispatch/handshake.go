package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/toolgate/toolgate/internal/model"
	"github.com/toolgate/toolgate/internal/stream"
)

// ErrProtocol marks a handshake the server broke off without a terminal
// tools or close event.
var ErrProtocol = errors.New("server violated the handshake protocol")

// HandshakeSource performs the streaming initialization exchange with a
// capability server. *schema.Fetcher satisfies this.
type HandshakeSource interface {
	FetchHandshake(ctx context.Context, server *model.ServerRecord) ([]model.ToolDescriptor, error)
}

// Handshake opens the streaming initialization exchange with the server and
// returns the tool descriptors it advertises. A stream that ends without a
// terminal event is reported as ErrProtocol; other failures keep their
// transport-level cause.
func (d *Dispatcher) Handshake(ctx context.Context, serverID string) ([]model.ToolDescriptor, error) {
	if d.handshaker == nil {
		return nil, fmt.Errorf("streaming handshake is not configured")
	}
	server, ok := d.registry.Get(serverID)
	if !ok {
		return nil, fmt.Errorf("server %q is not registered", serverID)
	}
	tools, err := d.handshaker.FetchHandshake(ctx, server)
	if err != nil {
		if errors.Is(err, stream.ErrNoTerminalEvent) {
			return nil, fmt.Errorf("handshake with server %q: %w: %w", serverID, ErrProtocol, err)
		}
		return nil, fmt.Errorf("handshake with server %q: %w", serverID, err)
	}
	return tools, nil
}
