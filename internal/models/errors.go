// Package models defines the core data structures for TeamsBridge.
package models

import "errors"

// Common errors.
var (
	ErrMemberNotFound       = errors.New("member not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMissingParticipants  = errors.New("could not resolve from/to members")
	ErrUnknownIdentifier    = errors.New("unknown identifier")
	ErrTeamNotFound         = errors.New("team not found")
	ErrChannelNotFound      = errors.New("channel not found")
)
