package entity

import (
	"sort"
	"time"
)

// ConversationIDSeparator joins the two participant ids of a conversation.
// Stored conversations use this exact format, so it must never change.
const ConversationIDSeparator = "_"

// DeriveConversationID returns the id of the one conversation shared by two
// participants: the lexicographically smaller id, an underscore, the other id.
func DeriveConversationID(a, b string) string {
	if a < b {
		return a + ConversationIDSeparator + b
	}
	return b + ConversationIDSeparator + a
}

// ConversationSummary is the chats/{id} record. DriverID and UserID are set
// when the summary is created and never rewritten; the mobile dashboard opens
// a chat through UserID.
type ConversationSummary struct {
	ID            string         `json:"id" firestore:"id"`
	Participants  []string       `json:"participants" firestore:"participants"`
	DriverID      string         `json:"driver_id,omitempty" firestore:"driverId,omitempty"`
	UserID        string         `json:"user_id,omitempty" firestore:"userId,omitempty"`
	LastMessage   string         `json:"last_message" firestore:"lastMessage"`
	LastTimestamp time.Time      `json:"last_timestamp,omitempty" firestore:"lastTimestamp"`
	UnreadCount   map[string]int `json:"unread_count" firestore:"unreadCount"`
}

// Unread returns the participant's counter, treating a missing entry as 0.
func (s *ConversationSummary) Unread(participantID string) int {
	if s.UnreadCount == nil {
		return 0
	}
	if n := s.UnreadCount[participantID]; n > 0 {
		return n
	}
	return 0
}

// Normalize fills the unread entry of every participant.
func (s *ConversationSummary) Normalize() {
	if s.UnreadCount == nil {
		s.UnreadCount = make(map[string]int, len(s.Participants))
	}
	for _, p := range s.Participants {
		if _, ok := s.UnreadCount[p]; !ok {
			s.UnreadCount[p] = 0
		}
	}
}

func (s *ConversationSummary) HasParticipant(participantID string) bool {
	for _, p := range s.Participants {
		if p == participantID {
			return true
		}
	}
	return false
}

// Counterpart returns the other participant, or "" if self is not a member.
func (s *ConversationSummary) Counterpart(self string) string {
	if !s.HasParticipant(self) {
		return ""
	}
	for _, p := range s.Participants {
		if p != self {
			return p
		}
	}
	return ""
}

// Clone returns a deep copy so callers can hand summaries across goroutines.
func (s *ConversationSummary) Clone() *ConversationSummary {
	c := *s
	c.Participants = append([]string(nil), s.Participants...)
	c.UnreadCount = make(map[string]int, len(s.UnreadCount))
	for k, v := range s.UnreadCount {
		c.UnreadCount[k] = v
	}
	return &c
}

// SortSummaries orders summaries by last activity, newest first. Summaries
// without a timestamp go last.
func SortSummaries(summaries []*ConversationSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastTimestamp, summaries[j].LastTimestamp
		if a.IsZero() || b.IsZero() {
			return !a.IsZero() && b.IsZero()
		}
		return a.After(b)
	})
}
