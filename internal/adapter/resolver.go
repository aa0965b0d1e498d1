package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/teamsbridge/teamsbridge/internal/models"
)

// leadingMention matches the at-mention markup Teams prepends when the
// bot is addressed in a channel.
var leadingMention = regexp.MustCompile(`^<at>[^<]*</at>\s*`)

// HandleActivity is the webhook endpoint. It authenticates the request,
// resolves the activity into a normalized message, and dispatches it to
// the callback. Unknown activity types are acknowledged without dispatch.
func (a *Adapter) HandleActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if a.authn != nil && !a.authn.Validate(ctx, r.Header.Get("Authorization")) {
		a.recordRejected()
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	var activity models.Activity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		http.Error(w, "malformed activity", http.StatusBadRequest)
		return
	}

	convType := ""
	if activity.Conversation != nil {
		convType = activity.Conversation.ConversationType
	}
	a.recordActivity(activity.Type, convType)

	a.persistServiceURL(activity.ServiceURL)

	switch activity.Type {
	case models.ActivityMessage:
		w.WriteHeader(a.handleMessage(ctx, &activity))
	case models.ActivityConversationUpdate:
		a.handleConversationUpdate(&activity)
		w.WriteHeader(http.StatusOK)
	default:
		a.logger.Debug().Str("type", activity.Type).Msg("ignoring activity")
		w.WriteHeader(http.StatusOK)
	}
}

// persistServiceURL records the Connector endpoint the first time an
// inbound activity reports it.
func (a *Adapter) persistServiceURL(url string) {
	if url == "" {
		return
	}
	stored, err := a.state.ServiceURL("")
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to read service url")
		return
	}
	if stored != "" {
		return
	}
	if err := a.state.SetServiceURL(url); err != nil {
		a.logger.Warn().Err(err).Msg("failed to persist service url")
	}
}

func (a *Adapter) handleMessage(ctx context.Context, activity *models.Activity) int {
	if activity.From == nil || activity.Recipient == nil || activity.Conversation == nil {
		a.logger.Warn().Msg("message activity missing from, recipient or conversation")
		return http.StatusBadRequest
	}

	conv := activity.Conversation
	if conv.TenantID == "" && activity.ChannelData != nil && activity.ChannelData.Tenant != nil {
		conv.TenantID = activity.ChannelData.Tenant.ID
	}

	if a.limiter != nil && !a.limiter.allow(activity.From.ID) {
		a.logger.Warn().Str("sender", activity.From.ID).Msg("rate limit exceeded, dropping message")
		a.recordDropped("rate_limited")
		return http.StatusOK
	}

	members, err := a.connector.Members(ctx, a.serviceURL(), conv.RoomID())
	if err != nil {
		a.logger.Warn().Err(err).Str("conversation", conv.ID).Msg("member lookup failed, resolving from payload")
	}

	from := resolveAccount(members, *activity.From)

	// The roster never lists the bot itself, so an unresolvable
	// recipient is the bot. Record its account on first contact.
	recipient, inRoster := lookupMember(members, activity.Recipient.ID)
	if !inRoster {
		recipient = *activity.Recipient
		a.bootstrapBotAccount(recipient)
	}
	to := models.PersonFromAccount(recipient)

	text := leadingMention.ReplaceAllString(activity.Text, "")

	msg := &models.Message{Body: text, Conversation: conv}

	switch conv.ConversationType {
	case models.ConversationPersonal:
		msg.From = from
		msg.To = to
		if err := a.state.SetPersonalConversation(from.ID, conv); err != nil {
			a.logger.Warn().Err(err).Str("person", from.ID).Msg("failed to persist personal conversation")
		}
	case models.ConversationChannel, models.ConversationGroup:
		room, err := models.RoomFromConversation(conv)
		if err != nil {
			a.logger.Warn().Err(err).Msg("failed to derive room")
			return http.StatusBadRequest
		}
		msg.From = models.RoomOccupant{Person: from, Room: room}
		msg.To = models.RoomOccupant{Person: to, Room: room}
		if err := a.state.SetChannelConversation(conv); err != nil {
			a.logger.Warn().Err(err).Str("room", room.ID).Msg("failed to persist channel conversation")
		}
	default:
		a.logger.Warn().Str("conversation_type", conv.ConversationType).Msg("unknown conversation type, dropping message")
		a.recordDropped("unknown_conversation_type")
		return http.StatusOK
	}

	if a.commandPrefix != "" && strings.HasPrefix(text, a.commandPrefix) {
		if err := a.SendFeedback(ctx, conv); err != nil {
			a.logger.Warn().Err(err).Msg("failed to send typing feedback")
		}
	}

	if a.callback != nil {
		a.callback(ctx, msg)
	}
	return http.StatusOK
}

// handleConversationUpdate invalidates the cached roster when members
// joined or left, so the next lookup sees the new membership.
func (a *Adapter) handleConversationUpdate(activity *models.Activity) {
	if activity.Conversation == nil {
		return
	}
	if len(activity.MembersAdded) == 0 && len(activity.MembersRemoved) == 0 {
		return
	}
	a.connector.InvalidateMembers(activity.Conversation.RoomID())
}

// bootstrapBotAccount records the bot's own account the first time it
// shows up as an activity recipient.
func (a *Adapter) bootstrapBotAccount(acct models.ChannelAccount) {
	if _, err := a.state.BotAccount(); err == nil {
		return
	}
	if err := a.state.SetBotAccount(acct); err != nil {
		a.logger.Warn().Err(err).Msg("failed to bootstrap bot account")
		return
	}
	a.logger.Info().Str("bot", acct.ID).Msg("recorded bot account")
}

// resolveAccount enriches a payload account with its roster record,
// which carries the principal name and email the payload omits.
func resolveAccount(members []models.ChannelAccount, acct models.ChannelAccount) models.Person {
	if m, ok := lookupMember(members, acct.ID); ok {
		return models.PersonFromAccount(m)
	}
	return models.PersonFromAccount(acct)
}

func lookupMember(members []models.ChannelAccount, id string) (models.ChannelAccount, bool) {
	for _, m := range members {
		if m.ID == id {
			return m, true
		}
	}
	return models.ChannelAccount{}, false
}

func (a *Adapter) recordActivity(activityType, convType string) {
	if a.metrics != nil {
		a.metrics.RecordActivity(activityType, convType)
	}
}

func (a *Adapter) recordRejected() {
	if a.metrics != nil {
		a.metrics.RecordRejected()
	}
}

func (a *Adapter) recordDropped(reason string) {
	if a.metrics != nil {
		a.metrics.RecordDropped(reason)
	}
}

func (a *Adapter) recordDelivery(ok bool) {
	if a.metrics != nil {
		a.metrics.RecordDelivery(ok)
	}
}
