package nextcloud

import (
	"fmt"
	"strings"
)

// Kind is the type of remote object a Handle points at.
type Kind string

const (
	KindNote     Kind = "note"
	KindEvent    Kind = "event"
	KindContact  Kind = "contact"
	KindFile     Kind = "file"
	KindTableRow Kind = "table-row"
	KindCard     Kind = "card"
)

func (k Kind) valid() bool {
	switch k {
	case KindNote, KindEvent, KindContact, KindFile, KindTableRow, KindCard:
		return true
	}
	return false
}

// Handle identifies a remote object. Container is the calendar, address
// book, table id or directory holding it; for cards it is "board/stack".
// Notes and table rows have no container.
type Handle struct {
	Kind      Kind   `json:"kind"`
	Container string `json:"container,omitempty"`
	ID        string `json:"id"`
}

// NewHandle validates and returns a handle.
func NewHandle(kind Kind, container, id string) (Handle, error) {
	h := Handle{Kind: kind, Container: container, ID: id}
	if err := h.Validate(); err != nil {
		return Handle{}, err
	}
	return h, nil
}

func (h Handle) Validate() error {
	if !h.Kind.valid() {
		return fmt.Errorf("unknown resource kind %q", h.Kind)
	}
	if h.ID == "" {
		return fmt.Errorf("%s handle has no id", h.Kind)
	}
	switch h.Kind {
	case KindEvent, KindContact, KindCard:
		if h.Container == "" {
			return fmt.Errorf("%s handle has no container", h.Kind)
		}
	}
	if h.Kind == KindCard && strings.Count(h.Container, "/") != 1 {
		return fmt.Errorf("card container must be board/stack, got %q", h.Container)
	}
	return nil
}

func (h Handle) String() string {
	if h.Container == "" {
		return string(h.Kind) + ":" + h.ID
	}
	return string(h.Kind) + ":" + h.Container + "/" + h.ID
}
