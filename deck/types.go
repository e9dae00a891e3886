package deck

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// User is a Deck participant.
type User struct {
	PrimaryKey  string `json:"primaryKey"`
	UID         string `json:"uid"`
	DisplayName string `json:"displayname"`
}

// Owner is a card owner. Deck sends either a bare user id or a full user
// object depending on the endpoint; both decode to the same value.
type Owner struct {
	User
}

func (o *Owner) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var uid string
		if err := json.Unmarshal(data, &uid); err != nil {
			return err
		}
		o.User = User{PrimaryKey: uid, UID: uid}
		return nil
	}
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("failed to decode owner: %w", err)
	}
	o.User = u
	return nil
}

// MarshalJSON writes the owner as its user id, the form the update endpoint
// accepts.
func (o Owner) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.ID())
}

// ID returns the uid, falling back to the primary key.
func (o Owner) ID() string {
	if o.UID != "" {
		return o.UID
	}
	return o.PrimaryKey
}

type Label struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Color   string `json:"color"`
	BoardID int64  `json:"boardId,omitempty"`
	CardID  int64  `json:"cardId,omitempty"`
}

type Board struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Owner        Owner           `json:"owner"`
	Color        string          `json:"color"`
	Archived     bool            `json:"archived"`
	Labels       []Label         `json:"labels,omitempty"`
	Users        []User          `json:"users,omitempty"`
	Permissions  map[string]bool `json:"permissions,omitempty"`
	ACL          json.RawMessage `json:"acl,omitempty"`
	Settings     json.RawMessage `json:"settings,omitempty"`
	DeletedAt    int64           `json:"deletedAt"`
	LastModified int64           `json:"lastModified,omitempty"`
	ETag         string          `json:"ETag,omitempty"`
}

type Stack struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	BoardID      int64  `json:"boardId"`
	Order        int    `json:"order"`
	DeletedAt    int64  `json:"deletedAt"`
	LastModified int64  `json:"lastModified,omitempty"`
	Cards        []Card `json:"cards,omitempty"`
	ETag         string `json:"ETag,omitempty"`
}

// Card is a Deck card. DueDate and Done are ISO 8601 strings as Deck sends
// them, empty when unset.
type Card struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	StackID         int64           `json:"stackId"`
	Type            string          `json:"type"`
	Order           int             `json:"order"`
	Archived        bool            `json:"archived"`
	Owner           Owner           `json:"owner"`
	Description     string          `json:"description,omitempty"`
	DueDate         string          `json:"duedate,omitempty"`
	Done            string          `json:"done,omitempty"`
	LastModified    int64           `json:"lastModified,omitempty"`
	CreatedAt       int64           `json:"createdAt,omitempty"`
	Labels          []Label         `json:"labels,omitempty"`
	AssignedUsers   json.RawMessage `json:"assignedUsers,omitempty"`
	AttachmentCount int             `json:"attachmentCount,omitempty"`
	DeletedAt       int64           `json:"deletedAt,omitempty"`
	ETag            string          `json:"ETag,omitempty"`
}
