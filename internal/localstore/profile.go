package localstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GueYatma/koktek-front/internal/entity"
)

// KeyAuthUser holds the guest profile.
const KeyAuthUser = "koktek_auth_user_v1"

// ProfileStorage caches the guest profile of a session.
type ProfileStorage struct {
	store Store
}

func NewProfileStorage(store Store) *ProfileStorage {
	return &ProfileStorage{store: store}
}

// Read returns nil when no usable profile is cached.
func (s *ProfileStorage) Read(ctx context.Context) *entity.AuthUser {
	raw, err := s.store.Get(ctx, KeyAuthUser)
	if err != nil {
		return nil
	}
	var user entity.AuthUser
	if err := json.Unmarshal(raw, &user); err != nil || user.Email == "" {
		return nil
	}
	return &user
}

func (s *ProfileStorage) Write(ctx context.Context, user entity.AuthUser) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	return s.store.Set(ctx, KeyAuthUser, payload)
}

func (s *ProfileStorage) Delete(ctx context.Context) error {
	return s.store.Delete(ctx, KeyAuthUser)
}
