package domain

import "time"

// ErrorView error kind + message, never a raw store error
type ErrorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// MessageView one rendered message
type MessageView struct {
	ID                 string         `json:"id"`
	StoreID            string         `json:"store_id,omitempty"`
	SenderID           string         `json:"sender_id"`
	SenderDisplayName  string         `json:"sender_display_name"`
	ShowSenderName     bool           `json:"show_sender_name"`
	Type               MessageType    `json:"type"`
	Body               string         `json:"body"`
	MediaURL           string         `json:"media_url,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	FormattedTimestamp string         `json:"formatted_timestamp"`
	DeliveryStatus     DeliveryStatus `json:"delivery_status"`
	StatusGlyph        string         `json:"status_glyph"`
	IsOwn              bool           `json:"is_own"`
	Read               bool           `json:"read"`
	IsLocalEcho        bool           `json:"is_local_echo"`
}

// ViewModel immutable snapshot of one open conversation
type ViewModel struct {
	ConversationID  string        `json:"conversation_id"`
	Title           string        `json:"title"`
	IsGroup         bool          `json:"is_group"`
	Messages        []MessageView `json:"messages"`
	TypingCaption   string        `json:"typing_caption"`
	PresenceCaption string        `json:"presence_caption"`
	Loading         bool          `json:"loading"`
	Error           *ErrorView    `json:"error,omitempty"`
	Banner          *ErrorView    `json:"banner,omitempty"`
}

// ConversationSummary one row of the conversation list
type ConversationSummary struct {
	ID            string    `json:"id"`
	IsGroup       bool      `json:"is_group"`
	Title         string    `json:"title"`
	PhotoURL      string    `json:"photo_url,omitempty"`
	Preview       string    `json:"preview"`
	Timestamp     string    `json:"timestamp"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// SendFailure a rolled back send; Text is the original input to restore
type SendFailure struct {
	ConversationID string    `json:"conversation_id"`
	LocalID        string    `json:"local_id"`
	Text           string    `json:"text"`
	Error          ErrorView `json:"error"`
}
