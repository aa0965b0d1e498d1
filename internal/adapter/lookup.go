package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/teamsbridge/teamsbridge/internal/models"
)

// ErrGraphDisabled is returned from directory lookups when no Graph
// client is configured.
var ErrGraphDisabled = errors.New("graph lookups disabled: no tenant configured")

// PersonByObjectID resolves a person through the Microsoft Graph
// directory by Azure AD object id.
func (a *Adapter) PersonByObjectID(ctx context.Context, objectID string) (models.Person, error) {
	if a.graph == nil {
		return models.Person{}, ErrGraphDisabled
	}
	user, err := a.graph.UserByID(ctx, objectID)
	if err != nil {
		return models.Person{}, err
	}
	return models.Person{
		ID:          user.ID,
		Name:        user.DisplayName,
		AADObjectID: user.ID,
		Email:       user.Mail,
	}, nil
}

// RoomByName resolves a channel by team and channel display names. The
// returned room id is the channel's thread id, usable for sends once a
// conversation is recorded for it.
func (a *Adapter) RoomByName(ctx context.Context, teamName, channelName string) (models.Room, error) {
	if a.graph == nil {
		return models.Room{}, ErrGraphDisabled
	}
	team, err := a.graph.TeamByName(ctx, teamName)
	if err != nil {
		return models.Room{}, err
	}
	channel, err := a.graph.ChannelByName(ctx, team.ID, channelName)
	if err != nil {
		return models.Room{}, fmt.Errorf("team %q: %w", teamName, err)
	}
	return models.Room{ID: channel.ID, TenantID: a.tenantID}, nil
}
