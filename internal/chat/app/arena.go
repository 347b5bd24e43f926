package app

import (
	"sort"

	"chat_sync_service/internal/chat/domain"
)

// MessageArena merges the store snapshot with optimistic local state.
//
// Every message is keyed by its logical id (the client generated LocalID,
// kept after confirmation), so an echo, its confirmed record and the same
// record inside a later snapshot collapse into one entry.
type MessageArena struct {
	snapshot  []domain.Message
	confirmed []domain.Message // confirmed but not yet seen in a snapshot
	echoes    []domain.Message
}

// NewMessageArena create MessageArena
func NewMessageArena() *MessageArena {
	return &MessageArena{}
}

func logicalID(m domain.Message) string {
	if m.LocalID != "" {
		return m.LocalID
	}
	return "store:" + m.ID
}

// SetSnapshot replace the authoritative list
func (a *MessageArena) SetSnapshot(msgs []domain.Message) {
	a.snapshot = msgs
	if len(a.confirmed) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		seen[logicalID(m)] = struct{}{}
	}
	kept := a.confirmed[:0]
	for _, m := range a.confirmed {
		if _, ok := seen[logicalID(m)]; ok {
			continue
		}
		// fell out of the window
		if len(msgs) > 0 && m.CreatedAt.Before(msgs[0].CreatedAt) {
			continue
		}
		kept = append(kept, m)
	}
	a.confirmed = kept
}

// AddEcho insert an unconfirmed local message
func (a *MessageArena) AddEcho(m domain.Message) {
	a.Remove(m.LocalID)
	a.echoes = append(a.echoes, m)
}

// Confirm replace the echo with the persisted record
func (a *MessageArena) Confirm(localID string, persisted domain.Message) {
	a.removeEcho(localID)
	persisted.LocalID = localID
	persisted.IsLocalEcho = false
	for _, m := range a.snapshot {
		if logicalID(m) == localID {
			return
		}
	}
	a.removeConfirmed(localID)
	a.confirmed = append(a.confirmed, persisted)
}

// Remove roll back an echo
func (a *MessageArena) Remove(localID string) bool {
	return a.removeEcho(localID) || a.removeConfirmed(localID)
}

// Echo pending echo by id
func (a *MessageArena) Echo(localID string) (domain.Message, bool) {
	for _, m := range a.echoes {
		if m.LocalID == localID {
			return m, true
		}
	}
	return domain.Message{}, false
}

// PendingCount unconfirmed echoes
func (a *MessageArena) PendingCount() int { return len(a.echoes) }

// Messages merged list, createdAt ascending, store order on ties
func (a *MessageArena) Messages() []domain.Message {
	out := make([]domain.Message, 0, len(a.snapshot)+len(a.confirmed)+len(a.echoes))
	seen := make(map[string]struct{}, cap(out))
	add := func(list []domain.Message) {
		for _, m := range list {
			id := logicalID(m)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, m)
		}
	}
	add(a.snapshot)
	add(a.confirmed)
	add(a.echoes)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (a *MessageArena) removeEcho(localID string) bool {
	for i, m := range a.echoes {
		if m.LocalID == localID {
			a.echoes = append(a.echoes[:i], a.echoes[i+1:]...)
			return true
		}
	}
	return false
}

func (a *MessageArena) removeConfirmed(localID string) bool {
	for i, m := range a.confirmed {
		if m.LocalID == localID {
			a.confirmed = append(a.confirmed[:i], a.confirmed[i+1:]...)
			return true
		}
	}
	return false
}
