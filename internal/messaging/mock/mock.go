package mock

import (
	"context"
	"sync"

	"github.com/jo-hoe/videogreeter/internal/messaging"
)

var _ messaging.Messenger = (*Messenger)(nil)

// Message is a recorded delivery.
type Message struct {
	Recipient string
	Text      string
	MediaURL  string
}

// Messenger records deliveries in memory. Err, when set, is returned from every Deliver call.
type Messenger struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func New() *Messenger {
	return &Messenger{}
}

func (m *Messenger) Deliver(ctx context.Context, recipient, text, mediaURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, Message{Recipient: recipient, Text: text, MediaURL: mediaURL})
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *Messenger) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
