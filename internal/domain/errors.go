package domain

import (
	"errors"
	"fmt"
)

// Error categories. Specific errors wrap one of these so callers can switch on
// the category with errors.Is.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
)

var (
	ErrInvalidParticipants = fmt.Errorf("%w: a conversation needs at least two distinct participants", ErrInvalidState)
	ErrAlreadyParticipant  = fmt.Errorf("%w: user is already a participant", ErrInvalidState)
	ErrNotParticipant      = fmt.Errorf("%w: user is not a participant", ErrNotFound)
	ErrConversationRetired = fmt.Errorf("%w: conversation is closed", ErrInvalidState)
)
