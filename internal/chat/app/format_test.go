package app

import (
	"strings"
	"testing"
	"time"

	"chat_sync_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
)

func TestRelativeTime(t *testing.T) {
	cases := []struct {
		ago  time.Duration
		want string
		ok   bool
	}{
		{0, "just now", true},
		{59 * time.Second, "just now", true},
		{time.Minute, "1m ago", true},
		{59 * time.Minute, "59m ago", true},
		{time.Hour, "1h ago", true},
		{23 * time.Hour, "23h ago", true},
		{24 * time.Hour, "1d ago", true},
		{6*24*time.Hour + 23*time.Hour, "6d ago", true},
		{7 * 24 * time.Hour, "", false},
		{-time.Minute, "just now", true},
	}
	for _, c := range cases {
		got, ok := RelativeTime(t0, t0.Add(-c.ago))
		assert.Equal(t, c.want, got, c.ago.String())
		assert.Equal(t, c.ok, ok, c.ago.String())
	}
}

func TestTimestamps(t *testing.T) {
	old := time.Date(2024, 3, 9, 15, 4, 0, 0, time.UTC)
	assert.Equal(t, "Mar 9, 3:04 PM", MessageTimestamp(t0, old, time.UTC))
	assert.Equal(t, "Mar 9", ListTimestamp(t0, old, time.UTC))
	assert.Equal(t, "5m ago", MessageTimestamp(t0, t0.Add(-5*time.Minute), time.UTC))
	assert.Equal(t, "", ListTimestamp(t0, time.Time{}, time.UTC))
}

func TestPresenceCaption(t *testing.T) {
	assert.Equal(t, "online", PresenceCaption(t0, domain.PresenceState{Online: true}))
	assert.Equal(t, "offline", PresenceCaption(t0, domain.PresenceState{}))
	assert.Equal(t, "just now", PresenceCaption(t0, domain.PresenceState{LastSeen: t0.Add(-10 * time.Second)}))
	assert.Equal(t, "2h ago", PresenceCaption(t0, domain.PresenceState{LastSeen: t0.Add(-2 * time.Hour)}))
	assert.Equal(t, "3d ago", PresenceCaption(t0, domain.PresenceState{LastSeen: t0.Add(-72 * time.Hour)}))
	assert.Equal(t, "offline", PresenceCaption(t0, domain.PresenceState{LastSeen: t0.Add(-8 * 24 * time.Hour)}))
}

func TestTypingCaption(t *testing.T) {
	assert.Equal(t, "", TypingCaption(nil))
	assert.Equal(t, "Bob is typing", TypingCaption([]string{"Bob"}))
	assert.Equal(t, "Bob and Carol are typing", TypingCaption([]string{"Bob", "Carol"}))
	assert.Equal(t, "Bob and 2 others are typing", TypingCaption([]string{"Bob", "Carol", "Dave"}))
}

func TestStatusGlyph(t *testing.T) {
	assert.Equal(t, "", StatusGlyph(domain.StatusPending, false))
	assert.Equal(t, "✓", StatusGlyph(domain.StatusSent, false))
	assert.Equal(t, "✓", StatusGlyph(domain.StatusDelivered, false))
	assert.Equal(t, "✓✓", StatusGlyph(domain.StatusSent, true))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "no messages yet", Preview(nil, "alice"))
	assert.Equal(t, "you: hi", Preview(&domain.LastMessageSnapshot{Text: "hi", SenderID: "alice", Type: domain.MessageText}, "alice"))
	assert.Equal(t, "hi", Preview(&domain.LastMessageSnapshot{Text: "hi", SenderID: "bob", Type: domain.MessageText}, "alice"))
	assert.Equal(t, "you sent an image", Preview(&domain.LastMessageSnapshot{SenderID: "alice", Type: domain.MessageImage}, "alice"))
	assert.Equal(t, "sent an image", Preview(&domain.LastMessageSnapshot{SenderID: "bob", Type: domain.MessageImage}, "alice"))

	long := strings.Repeat("é", 45)
	got := Preview(&domain.LastMessageSnapshot{Text: long, SenderID: "bob", Type: domain.MessageText}, "alice")
	assert.Equal(t, strings.Repeat("é", 40)+"...", got)
}

func TestTitle(t *testing.T) {
	users := map[string]domain.User{"bob": {UID: "bob", DisplayName: "Bob"}}

	assert.Equal(t, "Bob", Title(&domain.Conversation{MemberIDs: []string{"alice", "bob"}}, "alice", users))
	assert.Equal(t, "Unknown", Title(&domain.Conversation{MemberIDs: []string{"alice", "zed"}}, "alice", users))
	assert.Equal(t, "Weekend", Title(&domain.Conversation{IsGroup: true, Title: " Weekend "}, "alice", users))
	assert.Equal(t, "Group chat", Title(&domain.Conversation{IsGroup: true}, "alice", users))
}
