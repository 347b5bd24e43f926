package app

import (
	"fmt"
	"strings"
	"time"

	"chat_sync_service/internal/chat/domain"
)

const (
	glyphSent = "✓"
	glyphRead = "✓✓"

	previewLimit = 40
	noMessages   = "no messages yet"
	fallbackName = "Unknown"
	groupTitle   = "Group chat"
)

// RelativeTime "just now", "5m ago", "3h ago", "2d ago"; false past a week
func RelativeTime(now, t time.Time) (string, bool) {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return "just now", true
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute)), true
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour)), true
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour))), true
	}
	return "", false
}

// MessageTimestamp relative within a week, else "Jan 2, 3:04 PM"
func MessageTimestamp(now, t time.Time, loc *time.Location) string {
	if s, ok := RelativeTime(now, t); ok {
		return s
	}
	return t.In(loc).Format("Jan 2, 3:04 PM")
}

// ListTimestamp relative within a week, else "Jan 2"; empty for a zero time
func ListTimestamp(now, t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if s, ok := RelativeTime(now, t); ok {
		return s
	}
	return t.In(loc).Format("Jan 2")
}

// PresenceCaption "online", a relative last seen, or "offline"
func PresenceCaption(now time.Time, p domain.PresenceState) string {
	if p.Online {
		return "online"
	}
	if p.LastSeen.IsZero() {
		return "offline"
	}
	if s, ok := RelativeTime(now, p.LastSeen); ok {
		return s
	}
	return "offline"
}

// TypingCaption names in display order; the viewer must already be excluded
func TypingCaption(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing"
	case 2:
		return names[0] + " and " + names[1] + " are typing"
	}
	return fmt.Sprintf("%s and %d others are typing", names[0], len(names)-1)
}

// StatusGlyph own messages only
func StatusGlyph(status domain.DeliveryStatus, read bool) string {
	if read {
		return glyphRead
	}
	switch status {
	case domain.StatusSent, domain.StatusDelivered:
		return glyphSent
	}
	return ""
}

// Preview last-message line of the conversation list
func Preview(last *domain.LastMessageSnapshot, viewerID string) string {
	if last == nil {
		return noMessages
	}
	own := last.SenderID == viewerID
	if last.Type == domain.MessageImage {
		if own {
			return "you sent an image"
		}
		return "sent an image"
	}
	text := truncate(strings.TrimSpace(last.Text), previewLimit)
	if own {
		return "you: " + text
	}
	return text
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

// Title group title, or the peer's display name for a 1:1
func Title(conv *domain.Conversation, viewerID string, users map[string]domain.User) string {
	if conv.IsGroup {
		if t := strings.TrimSpace(conv.Title); t != "" {
			return t
		}
		return groupTitle
	}
	peer, ok := conv.PeerOf(viewerID)
	if !ok {
		return fallbackName
	}
	return displayName(users, peer)
}

func displayName(users map[string]domain.User, uid string) string {
	if u, ok := users[uid]; ok && u.DisplayName != "" {
		return u.DisplayName
	}
	return fallbackName
}
