// Package state persists the adapter's long-lived bookkeeping: the bot's
// own account, the connector service URL, known accounts, and the
// conversations the bot participates in. There is no way to enumerate
// those conversations through the API, so they are recorded as webhook
// traffic reveals them.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/teamsbridge/teamsbridge/internal/models"
	"github.com/teamsbridge/teamsbridge/internal/storage"
)

// Key namespaces. All values are JSON.
const (
	keyBotAccount  = "bot_account"
	keyServiceURL  = "service_url"
	prefixChannel  = "channel_conversations_"
	prefixPersonal = "personal_conversations_"
	prefixAccount  = "account$"
)

// State wraps a storage.Store with the adapter's key schema.
type State struct {
	store storage.Store
}

// New creates a State over the given store.
func New(store storage.Store) *State {
	return &State{store: store}
}

func (s *State) get(key string, v any) (bool, error) {
	data, err := s.store.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *State) set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.store.Set(key, data)
}

// BotAccount returns the bot's own account, recorded on first contact.
// Returns models.ErrAccountNotFound before the bootstrap happened.
func (s *State) BotAccount() (*models.ChannelAccount, error) {
	var acct models.ChannelAccount
	ok, err := s.get(keyBotAccount, &acct)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return &acct, nil
}

// SetBotAccount records the bot's own account.
func (s *State) SetBotAccount(acct models.ChannelAccount) error {
	return s.set(keyBotAccount, acct)
}

// ServiceURL returns the persisted connector service URL, or fallback if
// none was recorded yet.
func (s *State) ServiceURL(fallback string) (string, error) {
	var url string
	ok, err := s.get(keyServiceURL, &url)
	if err != nil {
		return "", err
	}
	if !ok {
		return fallback, nil
	}
	return url, nil
}

// SetServiceURL records the connector service URL reported by an inbound
// activity.
func (s *State) SetServiceURL(url string) error {
	return s.set(keyServiceURL, url)
}

// SetPersonalConversation records the direct conversation with a person
// so later proactive sends can target it without a fresh webhook.
func (s *State) SetPersonalConversation(personID string, conv *models.Conversation) error {
	return s.set(prefixPersonal+personID, conv)
}

// PersonalConversation returns the recorded direct conversation with a
// person, or models.ErrConversationNotFound.
func (s *State) PersonalConversation(personID string) (*models.Conversation, error) {
	var conv models.Conversation
	ok, err := s.get(prefixPersonal+personID, &conv)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrConversationNotFound
	}
	return &conv, nil
}

// SetChannelConversation records a channel conversation keyed by its room
// id. The stored id is normalized to the room id so replies into the
// channel do not inherit a stale message reference.
func (s *State) SetChannelConversation(conv *models.Conversation) error {
	normalized := *conv
	normalized.ID = conv.RoomID()
	return s.set(prefixChannel+normalized.ID, &normalized)
}

// ChannelConversation returns the recorded conversation for a room id,
// or models.ErrConversationNotFound.
func (s *State) ChannelConversation(roomID string) (*models.Conversation, error) {
	var conv models.Conversation
	ok, err := s.get(prefixChannel+roomID, &conv)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrConversationNotFound
	}
	return &conv, nil
}

// ChannelConversations returns all recorded channel conversations.
func (s *State) ChannelConversations() ([]*models.Conversation, error) {
	keys, err := s.store.Keys(prefixChannel)
	if err != nil {
		return nil, err
	}
	convs := make([]*models.Conversation, 0, len(keys))
	for _, k := range keys {
		conv, err := s.ChannelConversation(strings.TrimPrefix(k, prefixChannel))
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

// StoreAccount registers an account under its principal name (or raw id
// when the roster record carries none) so identifier lookups succeed.
func (s *State) StoreAccount(acct models.ChannelAccount) error {
	return s.set(prefixAccount+acct.PrincipalKey(), acct)
}

// Account returns the account stored under a principal name or id, or
// models.ErrAccountNotFound.
func (s *State) Account(principal string) (*models.ChannelAccount, error) {
	var acct models.ChannelAccount
	ok, err := s.get(prefixAccount+principal, &acct)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return &acct, nil
}
