package entity

import (
	"sort"
	"time"
)

// Message is immutable once appended. Timestamp stays zero until the store
// has resolved the server-assigned instant.
type Message struct {
	ID        string    `json:"id" firestore:"-"`
	Text      string    `json:"text" firestore:"text"`
	SenderID  string    `json:"sender_id" firestore:"senderId"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

// Pending reports whether the server timestamp has not resolved yet.
func (m *Message) Pending() bool {
	return m.Timestamp.IsZero()
}

// SortMessages orders messages ascending by timestamp. Ties keep their input
// order and pending messages go last.
func SortMessages(messages []*Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if a.Pending() || b.Pending() {
			return !a.Pending() && b.Pending()
		}
		return a.Timestamp.Before(b.Timestamp)
	})
}
