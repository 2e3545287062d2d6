package core

import "time"

// Message is the domain model for a chat message. Room messages carry
// Room and an empty To; direct messages carry To and an empty Room.
type Message struct {
	ID        int64
	Room      string
	From      string
	To        string
	Text      string
	CreatedAt time.Time
}
