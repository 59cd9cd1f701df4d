package models

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an append-only message history. Version is bumped on every
// successful write and is used for compare-and-swap appends.
type Conversation struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"conversation"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy whose message slice can be appended to freely.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}

// Chunk is a contiguous slice of a document. Index is 0-based within one
// chunking pass and Total is the number of chunks that pass produced.
type Chunk struct {
	Text         string  `json:"text"`
	Index        int     `json:"index"`
	Total        int     `json:"total"`
	CollectionID string  `json:"collection_id"`
	Score        float32 `json:"score,omitempty"` // only set on retrieval results
}

// Collection is an isolated namespace of chunks. Name is the identifier
// callers use; ID is assigned on first write.
type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
