// Package channels defines the contract between the message bus and the
// transports that move messages in and out of the process.
package channels

import "context"

// Channel is a transport adapter. Implementations translate between their
// wire protocol and bus messages: inbound traffic is published to the bus,
// outbound traffic for the channel's name is consumed from it. Start must
// not block; Stop must be safe to call after a failed Start.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}
