package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

// UserService mirrors identities from verified tokens into the user table so
// memberships and messages can reference them.
type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) Ensure(ctx context.Context, userID uuid.UUID, username string) error {
	if username == "" {
		username = "user-" + userID.String()[:8]
	}
	existing, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Username == username {
		return nil
	}
	return s.userRepo.Upsert(ctx, &domain.User{
		ID:          userID,
		Username:    username,
		DisplayName: username,
		CreatedAt:   time.Now(),
	})
}

func (s *UserService) Get(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}
