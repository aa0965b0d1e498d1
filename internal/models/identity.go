package models

import "fmt"

// Identifier is the shared capability surface of everything that can be
// the sender or recipient of a message: a person, a room, or a person
// speaking inside a room. Implementations are immutable value objects.
type Identifier interface {
	// Key is the stable string form: "@<id>", "#<roomId>" or
	// "#<roomId>/@<id>". Parsing a Key back through the adapter yields
	// an equal identifier.
	Key() string
	// DisplayName is the human-readable name, if known.
	DisplayName() string
	// ACLAttr is the attribute access-control rules match against.
	ACLAttr() string
}

// Person is a directly addressable account.
type Person struct {
	ID          string
	Name        string
	AADObjectID string
	Email       string
}

// PersonFromAccount builds a Person from a raw Connector account record.
func PersonFromAccount(account ChannelAccount) Person {
	return Person{
		ID:          account.ID,
		Name:        account.Name,
		AADObjectID: account.AADObjectID,
		Email:       account.Email,
	}
}

func (p Person) Key() string         { return "@" + p.ID }
func (p Person) DisplayName() string { return p.Name }
func (p Person) ACLAttr() string     { return "@" + p.ID }

// Subject returns the account block used when addressing this person in
// an outbound activity.
func (p Person) Subject() ChannelAccount {
	return ChannelAccount{ID: p.ID, Name: p.Name, AADObjectID: p.AADObjectID}
}

func (p Person) String() string { return p.Key() }

// Room is a Teams channel the bot participates in.
type Room struct {
	ID       string
	TenantID string
}

// RoomFromConversation derives a Room from a channel conversation.
func RoomFromConversation(conv *Conversation) (Room, error) {
	if conv == nil {
		return Room{}, fmt.Errorf("room from conversation: %w", ErrConversationNotFound)
	}
	return Room{ID: conv.RoomID(), TenantID: conv.TenantID}, nil
}

func (r Room) Key() string         { return "#" + r.ID }
func (r Room) DisplayName() string { return r.ID }
func (r Room) ACLAttr() string     { return "#" + r.ID }

func (r Room) String() string { return r.Key() }

// RoomOccupant is a person speaking inside a specific room.
type RoomOccupant struct {
	Person
	Room Room
}

func (o RoomOccupant) Key() string     { return o.Room.Key() + "/" + o.Person.Key() }
func (o RoomOccupant) ACLAttr() string { return o.Person.ACLAttr() }

func (o RoomOccupant) String() string { return o.Key() }

// Message is the normalized unit handed to the host callback and
// accepted for outbound sends.
type Message struct {
	Body string
	From Identifier
	To   Identifier
	// Conversation is the thread the message belongs to; nil for
	// proactive sends that are yet to be routed.
	Conversation *Conversation
	// Parent links a reply to the message it answers.
	Parent *Message
	// RemoteID is the id the Connector assigned when the message was
	// delivered, set after a successful send.
	RemoteID string
}
