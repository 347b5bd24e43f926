package domain

// Action websocket request action
type Action string

const (
	// OpenSession websocket action open_session
	OpenSession Action = "open_session"
	// CloseSession websocket action close_session
	CloseSession Action = "close_session"
	// InputChanged websocket action input_changed
	InputChanged Action = "input_changed"
	// Send websocket action send
	Send Action = "send"
	// Focus websocket action focus
	Focus Action = "focus"
	// AppState websocket action app_state
	AppState Action = "app_state"
	// ListConversations websocket action list_conversations
	ListConversations Action = "list_conversations"
	// CreateConversation websocket action create_conversation
	CreateConversation Action = "create_conversation"

	// NotifyViewModel pushed when the open conversation changes
	NotifyViewModel Action = "view_model"
	// NotifyConversations pushed when the conversation list changes
	NotifyConversations Action = "conversations"
	// NotifySendFailure pushed when a send was rolled back
	NotifySendFailure Action = "send_failure"
	// NotifyAuthInvalid pushed when the token expires
	NotifyAuthInvalid Action = "auth_invalid"
)

// WSRequest websocket Request
type WSRequest struct {
	Action         string   `json:"action" validate:"required"`
	ConversationID string   `json:"conversation_id"`
	Text           string   `json:"text"`
	Focused        bool     `json:"focused"`
	Active         bool     `json:"active"`
	IsGroup        bool     `json:"is_group"`
	Title          string   `json:"title" validate:"max=100"`
	MemberIDs      []string `json:"member_ids" validate:"dive,required"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
