package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/teamsbridge/teamsbridge/internal/models"
)

// Members returns the member list of a conversation. A roster fetched
// less than a minute ago is served from cache; a fresh fetch registers
// every returned account with the account registrar so later lookups by
// principal name succeed.
func (c *Client) Members(ctx context.Context, serviceURL, conversationID string) ([]models.ChannelAccount, error) {
	c.memberMu.Lock()
	entry, ok := c.members[conversationID]
	fresh := ok && c.now().Sub(entry.fetchedAt) < memberTTL
	c.memberMu.Unlock()

	if c.onMemberLookup != nil {
		c.onMemberLookup(fresh)
	}
	if fresh {
		return entry.members, nil
	}

	var members []models.ChannelAccount
	if _, err := c.get(ctx, conversationURL(serviceURL, conversationID)+"/members", &members); err != nil {
		return nil, err
	}

	c.memberMu.Lock()
	c.members[conversationID] = memberEntry{members: members, fetchedAt: c.now()}
	c.memberMu.Unlock()

	if c.accounts != nil {
		for _, m := range members {
			if err := c.accounts.StoreAccount(m); err != nil {
				c.logger.Warn().Err(err).Str("member", m.ID).Msg("failed to store roster account")
			}
		}
	}
	return members, nil
}

// InvalidateMembers drops the cached roster for a conversation. Called
// when an inbound activity reports added or removed members.
func (c *Client) InvalidateMembers(conversationID string) {
	c.memberMu.Lock()
	delete(c.members, conversationID)
	c.memberMu.Unlock()
}

// member fetches a single conversation member addressed by id or email.
func (c *Client) member(ctx context.Context, serviceURL, conversationID, ref string) (*models.ChannelAccount, error) {
	var m models.ChannelAccount
	status, err := c.get(ctx, conversationURL(serviceURL, conversationID)+"/members/"+url.PathEscape(ref), &m)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, fmt.Errorf("member %q: %w", ref, models.ErrMemberNotFound)
		}
		return nil, err
	}
	return &m, nil
}

// MemberByID resolves a conversation member by account id. A 404 maps to
// models.ErrMemberNotFound.
func (c *Client) MemberByID(ctx context.Context, serviceURL, conversationID, memberID string) (*models.ChannelAccount, error) {
	return c.member(ctx, serviceURL, conversationID, memberID)
}

// MemberByEmail resolves a team member by email address. A 404 maps to
// models.ErrMemberNotFound.
func (c *Client) MemberByEmail(ctx context.Context, serviceURL, teamID, email string) (*models.ChannelAccount, error) {
	return c.member(ctx, serviceURL, teamID, email)
}
