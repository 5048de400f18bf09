package service

import (
	"errors"
	"fmt"

	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

// Error categories. Every error a service returns either is one of these or
// wraps one, so transports can map them with errors.Is.
var (
	ErrForbidden        = domain.ErrForbidden
	ErrNotFound         = domain.ErrNotFound
	ErrInvalidState     = domain.ErrInvalidState
	ErrTransientStorage = repository.ErrUnavailable
	ErrInvalidInput     = errors.New("invalid input")

	// ErrConnectionRejected is returned when a live connection fails identity
	// proof. Such a connection is never registered.
	ErrConnectionRejected = errors.New("connection rejected")
)

var (
	ErrNotFoundOrForbidden   = fmt.Errorf("%w: not found or not owned by caller", ErrNotFound)
	ErrDuplicateNotification = fmt.Errorf("%w: notification already recorded", ErrInvalidState)
	ErrUserNotFound          = fmt.Errorf("%w: user not found", ErrNotFound)
)
