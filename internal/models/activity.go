package models

import "strings"

// Activity is one inbound or outbound event in the Bot Framework
// Connector protocol.
//
// See more:
// https://docs.microsoft.com/en-us/bot-framework/rest-api/bot-framework-rest-connector-api-reference#activity-object
type Activity struct {
	Type           string           `json:"type"`
	ID             string           `json:"id,omitempty"`
	Timestamp      string           `json:"timestamp,omitempty"`
	ServiceURL     string           `json:"serviceUrl,omitempty"`
	ChannelID      string           `json:"channelId,omitempty"`
	From           *ChannelAccount  `json:"from,omitempty"`
	Recipient      *ChannelAccount  `json:"recipient,omitempty"`
	Conversation   *Conversation    `json:"conversation,omitempty"`
	MembersAdded   []ChannelAccount `json:"membersAdded,omitempty"`
	MembersRemoved []ChannelAccount `json:"membersRemoved,omitempty"`
	Text           string           `json:"text,omitempty"`
	TextFormat     string           `json:"textFormat,omitempty"`
	Entities       []Entity         `json:"entities,omitempty"`
	ChannelData    *ChannelData     `json:"channelData,omitempty"`
	Attachments    []Attachment     `json:"attachments,omitempty"`
	ReplyToID      string           `json:"replyToId,omitempty"`
}

// ChannelAccount is a user or bot account as the Connector reports it.
// Member records returned by the conversation roster additionally carry
// the Azure AD principal name and email.
type ChannelAccount struct {
	ID                string `json:"id"`
	Name              string `json:"name,omitempty"`
	AADObjectID       string `json:"aadObjectId,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
	Email             string `json:"email,omitempty"`
}

// PrincipalKey returns the key accounts are stored under: the Azure AD
// principal name when present, the raw account id otherwise.
func (a ChannelAccount) PrincipalKey() string {
	if a.UserPrincipalName != "" {
		return a.UserPrincipalName
	}
	return a.ID
}

// Conversation identifies the thread context an activity belongs to.
// Channel conversation ids are composite: "<roomId>;messageid=<id>".
type Conversation struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	AADObjectID      string `json:"aadObjectId,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
}

const messageIDPrefix = "messageid="

// RoomID returns the conversation id with any trailing message reference
// stripped. For personal conversations this is the id itself.
func (c *Conversation) RoomID() string {
	room, _, _ := strings.Cut(c.ID, ";")
	return room
}

// MessageID returns the message reference embedded in a composite
// conversation id, or "" if the id carries none.
func (c *Conversation) MessageID() string {
	_, rest, ok := strings.Cut(c.ID, ";")
	if !ok || !strings.HasPrefix(rest, messageIDPrefix) {
		return ""
	}
	return rest[len(messageIDPrefix):]
}

// Entity is a message entity, e.g. an @-mention.
type Entity struct {
	Type      string          `json:"type"`
	Mentioned *ChannelAccount `json:"mentioned,omitempty"`
	Text      string          `json:"text,omitempty"`
}

// ChannelData carries the Teams-specific extension block.
type ChannelData struct {
	TeamsChannelID string `json:"teamsChannelId,omitempty"`
	TeamsTeamID    string `json:"teamsTeamId,omitempty"`
	Channel        *struct {
		ID string `json:"id"`
	} `json:"channel,omitempty"`
	Team *struct {
		ID string `json:"id"`
	} `json:"team,omitempty"`
	Tenant *struct {
		ID string `json:"id"`
	} `json:"tenant,omitempty"`
}

// Attachment is an activity attachment, e.g. an Adaptive Card.
type Attachment struct {
	ContentType string `json:"contentType"`
	ContentURL  string `json:"contentUrl,omitempty"`
	Content     any    `json:"content,omitempty"`
	Name        string `json:"name,omitempty"`
}

// Conversation kinds reported by Teams.
const (
	ConversationPersonal = "personal"
	ConversationChannel  = "channel"
	ConversationGroup    = "groupChat"
)

// Activity types consumed by the adapter.
const (
	ActivityMessage            = "message"
	ActivityTyping             = "typing"
	ActivityConversationUpdate = "conversationUpdate"
)
