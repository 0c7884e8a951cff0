package notify

import "context"

// Notifier delivers a formatted message to an external channel.
type Notifier interface {
	Send(ctx context.Context, message string) error
}
