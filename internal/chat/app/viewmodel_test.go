package app

import (
	"encoding/json"
	"testing"
	"time"

	"chat_sync_service/internal/chat/domain"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupView() sessionView {
	return sessionView{
		conversationID: "g1",
		viewerID:       "alice",
		conv:           &domain.Conversation{ID: "g1", IsGroup: true, Title: "Weekend", MemberIDs: []string{"alice", "bob", "carol"}},
		messages: []domain.Message{
			{ID: "s0", LocalID: "l0", SenderID: "carol", Type: domain.MessageImage, MediaRef: "images/cat.png", CreatedAt: t0.Add(-8 * 24 * time.Hour), DeliveryStatus: domain.StatusSent},
			{ID: "s1", LocalID: "l1", SenderID: "bob", Type: domain.MessageText, Body: "saturday?", CreatedAt: t0.Add(-2 * time.Hour), DeliveryStatus: domain.StatusSent},
			{ID: "s2", LocalID: "l2", SenderID: "alice", Type: domain.MessageText, Body: "sure", CreatedAt: t0.Add(-time.Minute), DeliveryStatus: domain.StatusSent},
			domain.MessageDraft{LocalID: "l3", ConversationID: "g1", SenderID: "alice", Type: domain.MessageText, Body: "on my way", CreatedAt: t0}.Echo(),
		},
		members: []domain.ConversationMember{
			{UID: "alice", LastSeenAt: t0},
			{UID: "bob", LastSeenAt: t0},
			{UID: "carol", LastSeenAt: t0.Add(-30 * time.Second)},
		},
		typingIDs: []string{"alice", "carol"},
		users: map[string]domain.User{
			"alice": {UID: "alice", DisplayName: "Alice"},
			"bob":   {UID: "bob", DisplayName: "Bob"},
			"carol": {UID: "carol", DisplayName: "Carol"},
		},
		media:    map[string]string{"images/cat.png": "https://cdn.example.com/cat.png"},
		presence: "online",
		now:      t0,
		loc:      time.UTC,
	}
}

func TestGroupViewModelGolden(t *testing.T) {
	vm := buildViewModel(groupView())
	b, err := json.MarshalIndent(vm, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "group_view_model", b)
}

func TestViewModelOwnEchoIsNeverRead(t *testing.T) {
	in := groupView()
	in.members = []domain.ConversationMember{{UID: "bob", LastSeenAt: t0.Add(time.Hour)}, {UID: "carol", LastSeenAt: t0.Add(time.Hour)}}
	vm := buildViewModel(in)

	last := vm.Messages[len(vm.Messages)-1]
	assert.True(t, last.IsLocalEcho)
	assert.False(t, last.Read)
	assert.Equal(t, "", last.StatusGlyph)
	assert.True(t, vm.Messages[2].Read)
}

func TestViewModelPrivateShowsPresence(t *testing.T) {
	in := groupView()
	in.conv = &domain.Conversation{ID: "c1", MemberIDs: []string{"alice", "bob"}}
	in.typingIDs = []string{"bob"}
	vm := buildViewModel(in)

	assert.Equal(t, "Bob", vm.Title)
	assert.Equal(t, "online", vm.PresenceCaption)
	assert.Equal(t, "Bob is typing", vm.TypingCaption)
	for _, m := range vm.Messages {
		assert.False(t, m.ShowSenderName)
	}
}

func TestSummaries(t *testing.T) {
	convs := []domain.Conversation{
		{ID: "c1", MemberIDs: []string{"alice", "bob"}, LastMessageAt: t0.Add(-3 * time.Hour),
			LastMessage: &domain.LastMessageSnapshot{Text: "see you", SenderID: "alice", Type: domain.MessageText}},
		{ID: "g1", IsGroup: true, MemberIDs: []string{"alice", "bob", "carol"}},
	}
	users := map[string]domain.User{"bob": {UID: "bob", DisplayName: "Bob", PhotoURL: "https://cdn.example.com/bob.png"}}

	list := buildSummaries(convs, "alice", users, t0, time.UTC)
	require.Len(t, list, 2)
	assert.Equal(t, "Bob", list[0].Title)
	assert.Equal(t, "you: see you", list[0].Preview)
	assert.Equal(t, "3h ago", list[0].Timestamp)
	assert.Equal(t, "https://cdn.example.com/bob.png", list[0].PhotoURL)
	assert.Equal(t, "Group chat", list[1].Title)
	assert.Equal(t, "no messages yet", list[1].Preview)
	assert.Equal(t, "", list[1].Timestamp)
}
