package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/teamsbridge/teamsbridge/internal/models"
)

// SendMessage delivers a message. Replies go into the thread of their
// parent; proactive messages are routed by the recipient identifier,
// opening a personal conversation when none is recorded yet. On success
// msg.RemoteID holds the id the Connector assigned.
func (a *Adapter) SendMessage(ctx context.Context, msg *models.Message) error {
	conv, replyTo, err := a.conversationFor(ctx, msg)
	if err != nil {
		return err
	}
	msg.Conversation = conv

	activity := a.buildActivity(models.ActivityMessage, conv, msg.To)
	activity.Text = msg.Body
	activity.TextFormat = "markdown"
	activity.ReplyToID = replyTo

	id, err := a.connector.SendActivity(ctx, a.serviceURL(), activity)
	a.recordDelivery(err == nil)
	if err != nil {
		return err
	}
	// The emulator acknowledges without a body; mint an id so replies
	// can still reference this message locally.
	if id == "" {
		id = uuid.NewString()
	}
	msg.RemoteID = id
	return nil
}

// SendCard delivers an Adaptive Card into the message's conversation.
func (a *Adapter) SendCard(ctx context.Context, msg *models.Message, card *Card) error {
	conv, replyTo, err := a.conversationFor(ctx, msg)
	if err != nil {
		return err
	}
	msg.Conversation = conv

	activity := a.buildActivity(models.ActivityMessage, conv, msg.To)
	activity.ReplyToID = replyTo
	activity.Attachments = []models.Attachment{card.Attachment()}

	id, err := a.connector.SendActivity(ctx, a.serviceURL(), activity)
	a.recordDelivery(err == nil)
	if err != nil {
		return err
	}
	if id == "" {
		id = uuid.NewString()
	}
	msg.RemoteID = id
	return nil
}

// SendFeedback posts a typing indicator into a conversation, shown
// while a command is being processed.
func (a *Adapter) SendFeedback(ctx context.Context, conv *models.Conversation) error {
	activity := a.buildActivity(models.ActivityTyping, conv, nil)
	_, err := a.connector.SendActivity(ctx, a.serviceURL(), activity)
	return err
}

// SendToEmail opens (or reuses) a personal conversation with a team
// member addressed by email and delivers body into it. The member must
// belong to the team's roster.
func (a *Adapter) SendToEmail(ctx context.Context, teamID, email, body string) (string, error) {
	member, err := a.connector.MemberByEmail(ctx, a.serviceURL(), teamID, email)
	if err != nil {
		return "", err
	}

	person := models.PersonFromAccount(*member)
	conv, err := a.personalConversation(ctx, person, a.tenantFor(teamID))
	if err != nil {
		return "", err
	}

	msg := &models.Message{Body: body, To: person, Conversation: conv}
	if err := a.SendMessage(ctx, msg); err != nil {
		return "", err
	}
	return msg.RemoteID, nil
}

// conversationFor derives the conversation a message should be posted
// into, and the activity id to thread under when replying.
func (a *Adapter) conversationFor(ctx context.Context, msg *models.Message) (*models.Conversation, string, error) {
	if msg.Parent != nil && msg.Parent.Conversation != nil {
		conv := msg.Parent.Conversation
		replyTo := conv.MessageID()
		if replyTo == "" {
			replyTo = msg.Parent.RemoteID
		}
		return conv, replyTo, nil
	}
	if msg.Conversation != nil {
		return msg.Conversation, "", nil
	}

	switch to := msg.To.(type) {
	case models.Person:
		conv, err := a.personalConversation(ctx, to, a.tenantID)
		return conv, "", err
	case models.Room:
		conv, err := a.state.ChannelConversation(to.ID)
		return conv, "", err
	case models.RoomOccupant:
		conv, err := a.state.ChannelConversation(to.Room.ID)
		return conv, "", err
	}
	return nil, "", fmt.Errorf("cannot route message: %w", models.ErrMissingParticipants)
}

// personalConversation returns the recorded direct conversation with a
// person, creating one through the Connector when none exists yet.
func (a *Adapter) personalConversation(ctx context.Context, p models.Person, tenantID string) (*models.Conversation, error) {
	conv, err := a.state.PersonalConversation(p.ID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, models.ErrConversationNotFound) {
		return nil, err
	}

	conv, err = a.connector.CreateConversation(ctx, a.serviceURL(), a.BotID(), p.ID, tenantID)
	if err != nil {
		return nil, err
	}
	if err := a.state.SetPersonalConversation(p.ID, conv); err != nil {
		a.logger.Warn().Err(err).Str("person", p.ID).Msg("failed to persist personal conversation")
	}
	return conv, nil
}

// tenantFor returns the tenant a team's conversations were recorded
// under, falling back to the configured tenant.
func (a *Adapter) tenantFor(teamID string) string {
	if conv, err := a.state.ChannelConversation(teamID); err == nil && conv.TenantID != "" {
		return conv.TenantID
	}
	return a.tenantID
}

// buildActivity assembles the outbound frame: the bot as sender, the
// addressed person (if any) as recipient.
func (a *Adapter) buildActivity(activityType string, conv *models.Conversation, to models.Identifier) *models.Activity {
	activity := &models.Activity{
		Type:         activityType,
		Conversation: conv,
	}
	if bot, err := a.state.BotAccount(); err == nil {
		activity.From = bot
	}
	if subject := subjectOf(to); subject != nil {
		activity.Recipient = subject
	}
	return activity
}

func subjectOf(id models.Identifier) *models.ChannelAccount {
	switch v := id.(type) {
	case models.Person:
		s := v.Subject()
		return &s
	case models.RoomOccupant:
		s := v.Person.Subject()
		return &s
	}
	return nil
}

// BuildIdentifier parses the string forms "@person", "#room" and
// "#room/@person" back into identifiers, resolving people against the
// recorded accounts.
func (a *Adapter) BuildIdentifier(text string) (models.Identifier, error) {
	text = strings.TrimSpace(text)

	switch {
	case strings.HasPrefix(text, "#"):
		roomPart, personPart, hasOccupant := strings.Cut(text[1:], "/")
		if roomPart == "" {
			return nil, fmt.Errorf("identifier %q: %w", text, models.ErrUnknownIdentifier)
		}
		room := models.Room{ID: roomPart}
		if conv, err := a.state.ChannelConversation(roomPart); err == nil {
			room.TenantID = conv.TenantID
		}
		if !hasOccupant {
			return room, nil
		}
		person, err := a.buildPerson(personPart)
		if err != nil {
			return nil, err
		}
		return models.RoomOccupant{Person: person, Room: room}, nil

	case strings.HasPrefix(text, "@"):
		return a.buildPerson(text)

	default:
		return nil, fmt.Errorf("identifier %q: %w", text, models.ErrUnknownIdentifier)
	}
}

func (a *Adapter) buildPerson(text string) (models.Person, error) {
	principal, ok := strings.CutPrefix(text, "@")
	if !ok || principal == "" {
		return models.Person{}, fmt.Errorf("identifier %q: %w", text, models.ErrUnknownIdentifier)
	}
	acct, err := a.state.Account(principal)
	if err != nil {
		return models.Person{}, fmt.Errorf("identifier %q: %w", text, err)
	}
	return models.PersonFromAccount(*acct), nil
}
