package messaging

import "context"

// Messenger delivers a notification to a recipient.
type Messenger interface {
	// Deliver sends text to recipient (E.164 phone number). mediaURL is optional.
	Deliver(ctx context.Context, recipient, text, mediaURL string) error
}
