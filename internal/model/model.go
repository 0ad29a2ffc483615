// Package model holds the shared domain types for the collaboration server
// and its clients: boards, lists, cards, workspaces and the event envelope
// pushed over the wire.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which positional entity a store operation targets.
type Kind int

const (
	KindCard Kind = iota
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindCard:
		return "card"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Scope is the container within which positions must be unique: a list for
// cards, a board for lists.
type Scope struct {
	Kind     Kind
	ParentID uuid.UUID
}

func CardScope(listID uuid.UUID) Scope  { return Scope{Kind: KindCard, ParentID: listID} }
func ListScope(boardID uuid.UUID) Scope { return Scope{Kind: KindList, ParentID: boardID} }

type Workspace struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type Board struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspaceId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// List is an ordered container of cards. Position is its ordinal within the
// owning board.
type List struct {
	ID        uuid.UUID `json:"id"`
	BoardID   uuid.UUID `json:"boardId"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	Archived  bool      `json:"archived"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Card is the unit of work on a board. Position is its ordinal within the
// owning list.
type Card struct {
	ID          uuid.UUID `json:"id"`
	ListID      uuid.UUID `json:"listId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Position    int       `json:"position"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Event channels, one push channel per entity kind.
const (
	ChannelCard  = "card"
	ChannelList  = "list"
	ChannelBoard = "board"
)

// Event types carried on the channels above.
const (
	EventCreated   = "created"
	EventUpdated   = "updated"
	EventMoved     = "moved"
	EventDeleted   = "deleted"
	EventReordered = "reordered"
)

// Event is the envelope published into a workspace room and pushed to every
// connected member. Origin carries the id of the client that caused the
// mutation so that client can fold the echo into its own pending action
// instead of applying it twice.
type Event struct {
	Channel   string          `json:"channel"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Origin    string          `json:"origin,omitempty"`
	ActionID  string          `json:"actionId,omitempty"`
}

// MoveCardData is the payload of a card "moved" event.
type MoveCardData struct {
	Card       Card      `json:"card"`
	FromListID uuid.UUID `json:"fromListId"`
}

// ReorderData is the payload of a "reordered" event: the authoritative id
// sequence for one scope.
type ReorderData struct {
	ScopeID    uuid.UUID   `json:"scopeId"`
	OrderedIDs []uuid.UUID `json:"orderedIds"`
}

// DeleteData is the payload of a "deleted" event.
type DeleteData struct {
	ID uuid.UUID `json:"id"`
}
