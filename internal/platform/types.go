// Package platform defines the messaging-platform wire types and the
// outbound Sender used by the rest of the bot. The shapes follow the
// platform's bot HTTP API JSON.
package platform

// Update is one inbound event delivered to the webhook.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Document  *Document   `json:"document,omitempty"`
	ReplyTo   *Message    `json:"reply_to_message,omitempty"`
}

// User identifies a platform account.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Chat identifies the conversation an update belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// PhotoSize is one resolution of an inbound photo; the platform sends
// several, largest last.
type PhotoSize struct {
	FileID string `json:"file_id"`
}

// Document is an inbound file attachment.
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
}

// CallbackQuery is an inline-keyboard button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data"`
}

// InlineButton is one inline-keyboard button.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

// InlineKeyboard is an inline keyboard attached to a message.
type InlineKeyboard struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard"`
}

// KeyboardButton is one reply-keyboard button.
type KeyboardButton struct {
	Text string `json:"text"`
}

// ReplyKeyboard replaces the user's input keyboard.
type ReplyKeyboard struct {
	Keyboard       [][]KeyboardButton `json:"keyboard"`
	ResizeKeyboard bool               `json:"resize_keyboard,omitempty"`
}

// SingleColumn lays buttons out one per row.
func SingleColumn(buttons ...InlineButton) *InlineKeyboard {
	rows := make([][]InlineButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []InlineButton{b})
	}
	return &InlineKeyboard{InlineKeyboard: rows}
}

// DisplayName renders the account's full name the way the original bot
// did: first and last name joined, trimmed.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	return name
}

// HandleTag returns "@username" or empty when the account has none.
func (u *User) HandleTag() string {
	if u == nil || u.Username == "" {
		return ""
	}
	return "@" + u.Username
}

// LargestPhoto returns the file reference of the best photo resolution.
func (m *Message) LargestPhoto() string {
	if m == nil || len(m.Photo) == 0 {
		return ""
	}
	return m.Photo[len(m.Photo)-1].FileID
}
