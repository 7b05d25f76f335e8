package dispatch

import (
	"sync"

	"github.com/flashproto/support-bot/internal/domain"
	"github.com/flashproto/support-bot/internal/texts"
)

// MessageCorrelator maps outbound notice messages (chat id + message
// id) to ticket ids so quoted admin replies resolve structurally
// instead of by parsing rendered text. The regex over the quoted text
// remains as fallback for notices sent by an earlier process.
type MessageCorrelator struct {
	mu      sync.Mutex
	tickets map[messageKey]string
}

type messageKey struct {
	chatID    int64
	messageID int64
}

// NewMessageCorrelator creates an empty correlator.
func NewMessageCorrelator() *MessageCorrelator {
	return &MessageCorrelator{tickets: make(map[messageKey]string)}
}

// Remember records one outbound notice.
func (c *MessageCorrelator) Remember(chatID, messageID int64, ticketID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickets[messageKey{chatID: chatID, messageID: messageID}] = ticketID
}

// Forget drops every entry pointing at the ticket.
func (c *MessageCorrelator) Forget(ticketID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, id := range c.tickets {
		if id == ticketID {
			delete(c.tickets, key)
		}
	}
}

// Seed rebuilds the map from the persisted origin-message refs.
func (c *MessageCorrelator) Seed(tickets []*domain.Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tickets {
		for _, ref := range t.OriginMessages {
			c.tickets[messageKey{chatID: ref.ChatID, messageID: ref.MessageID}] = t.ID
		}
	}
}

// resolve returns the ticket id for a quoted message, trying the map
// first and the embedded-id pattern second.
func (c *MessageCorrelator) resolve(chatID, messageID int64, quotedText string) (string, bool) {
	c.mu.Lock()
	ticketID, ok := c.tickets[messageKey{chatID: chatID, messageID: messageID}]
	c.mu.Unlock()
	if ok {
		return ticketID, true
	}
	return texts.ExtractTicketID(quotedText)
}
