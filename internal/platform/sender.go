package platform

import "context"

// SendOptions carries optional send parameters shared by all outbound
// message shapes.
type SendOptions struct {
	ParseMode   string
	ReplyMarkup any // *InlineKeyboard or *ReplyKeyboard
}

// Sender delivers outbound messages to the platform. Implementations
// return the platform-assigned message id so callers can correlate
// later quoted replies with the ticket that produced the message.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (int64, error)
	SendPhoto(ctx context.Context, chatID int64, fileRef, caption string, opts *SendOptions) (int64, error)
	SendDocument(ctx context.Context, chatID int64, fileRef, caption string, opts *SendOptions) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string) error
}
