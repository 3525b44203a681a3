package application

import "context"

// NotificationDispatch delivers series notifications. Implementations own the
// transport; the engine only assembles the message.
type NotificationDispatch interface {
	Notify(ctx context.Context, notification Notification) error
}
