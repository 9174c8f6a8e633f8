package memory

import (
	"context"
	"sync"
	"time"

	"marketplace-auth/internal/models"
	"marketplace-auth/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserStore enforces the same unique email/phone constraints as the mongo indexes.
type UserStore struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]*models.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[primitive.ObjectID]*models.User)}
}

func (s *UserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if (user.Email != "" && existing.Email == user.Email) ||
			(user.Phone != "" && existing.Phone == user.Phone) {
			return repository.ErrDuplicate
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *UserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[oid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *user
	return &out, nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return email != "" && u.Email == email })
}

func (s *UserStore) FindByPhone(_ context.Context, phone string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return phone != "" && u.Phone == phone })
}

func (s *UserStore) TouchLogin(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *models.User) {
		login := at
		u.LastLogin = &login
		u.UpdatedAt = at
	})
}

func (s *UserStore) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *models.User) {
		u.IsEmailVerified = true
		u.UpdatedAt = at
	})
}

func (s *UserStore) MarkPhoneVerified(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *models.User) {
		u.IsPhoneVerified = true
		u.UpdatedAt = at
	})
}

func (s *UserStore) UpdatePassword(_ context.Context, id, passwordHash string, at time.Time) error {
	return s.update(id, func(u *models.User) {
		u.PasswordHash = passwordHash
		u.UpdatedAt = at
	})
}

func (s *UserStore) HealthCheck(context.Context) error { return nil }

func (s *UserStore) find(match func(*models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if match(user) {
			out := *user
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *UserStore) update(id string, fn func(*models.User)) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repository.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[oid]
	if !ok {
		return repository.ErrNotFound
	}
	fn(user)
	return nil
}
