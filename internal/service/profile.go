package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/localstore"
)

var (
	// ErrInvalidEmail is returned for addresses that do not parse.
	ErrInvalidEmail = errors.New("profile: invalid email")
	// ErrNotLoggedIn is returned by operations that need a profile.
	ErrNotLoggedIn = errors.New("profile: no guest profile")
)

const defaultCountry = "France"

// ProfileUpdate carries the fields to change; nil fields are kept.
type ProfileUpdate struct {
	FirstName    *string `json:"firstName,omitempty"`
	LastName     *string `json:"lastName,omitempty"`
	Birthdate    *string `json:"birthdate,omitempty"`
	Gender       *string `json:"gender,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	AddressLine1 *string `json:"addressLine1,omitempty"`
	AddressLine2 *string `json:"addressLine2,omitempty"`
	Zip          *string `json:"zip,omitempty"`
	City         *string `json:"city,omitempty"`
	Country      *string `json:"country,omitempty"`
}

func (u ProfileUpdate) apply(user *entity.AuthUser) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&user.FirstName, u.FirstName)
	set(&user.LastName, u.LastName)
	set(&user.Birthdate, u.Birthdate)
	set(&user.Gender, u.Gender)
	set(&user.Phone, u.Phone)
	set(&user.AddressLine1, u.AddressLine1)
	set(&user.AddressLine2, u.AddressLine2)
	set(&user.Zip, u.Zip)
	set(&user.City, u.City)
	set(&user.Country, u.Country)
}

// ProfileService is the guest profile cache of one session. It asserts an
// identity without verifying it and must never gate access to anything.
type ProfileService struct {
	storage *localstore.ProfileStorage
	history *localstore.OrderHistory
	logger  *slog.Logger

	mu sync.Mutex
}

func NewProfileService(storage *localstore.ProfileStorage, history *localstore.OrderHistory, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{storage: storage, history: history, logger: logger}
}

func normalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return strings.ToLower(trimmed), nil
}

// Current returns the cached profile, or nil.
func (s *ProfileService) Current(ctx context.Context) *entity.AuthUser {
	return s.storage.Read(ctx)
}

// Login switches the session to email, keeping the cached profile when it
// already belongs to that address.
func (s *ProfileService) Login(ctx context.Context, email string) (*entity.AuthUser, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if current := s.storage.Read(ctx); current != nil && strings.EqualFold(current.Email, normalized) {
		return current, nil
	}
	user := entity.AuthUser{Email: normalized, Country: defaultCountry}
	if err := s.storage.Write(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to store profile: %w", err)
	}
	return &user, nil
}

// Register starts a blank profile for email, replacing any cached one.
func (s *ProfileService) Register(ctx context.Context, email string) (*entity.AuthUser, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user := entity.AuthUser{Email: normalized, Country: defaultCountry}
	if err := s.storage.Write(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to store profile: %w", err)
	}
	return &user, nil
}

func (s *ProfileService) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.Delete(ctx)
}

// Update merges update into the cached profile.
func (s *ProfileService) Update(ctx context.Context, update ProfileUpdate) (*entity.AuthUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.storage.Read(ctx)
	if user == nil {
		return nil, ErrNotLoggedIn
	}
	update.apply(user)
	if err := s.storage.Write(ctx, *user); err != nil {
		return nil, fmt.Errorf("failed to store profile: %w", err)
	}
	return user, nil
}

// Orders returns the ticket history of the logged-in guest, newest first.
func (s *ProfileService) Orders(ctx context.Context) ([]entity.StoredOrder, error) {
	user := s.storage.Read(ctx)
	if user == nil {
		return nil, ErrNotLoggedIn
	}
	return s.history.ForEmail(ctx, user.Email), nil
}

// RememberOrder stores a ticket in email's history.
func (s *ProfileService) RememberOrder(ctx context.Context, email string, order entity.StoredOrder) error {
	if err := s.history.Save(ctx, email, order); err != nil {
		return fmt.Errorf("failed to save order history: %w", err)
	}
	return nil
}
