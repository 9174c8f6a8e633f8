package memory

import (
	"context"
	"sync"
	"time"

	"marketplace-auth/internal/models"
	"marketplace-auth/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type VendorStore struct {
	mu      sync.RWMutex
	vendors map[primitive.ObjectID]*models.Vendor
}

func NewVendorStore() *VendorStore {
	return &VendorStore{vendors: make(map[primitive.ObjectID]*models.Vendor)}
}

func (s *VendorStore) Create(_ context.Context, vendor *models.Vendor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.vendors {
		if existing.Email == vendor.Email {
			return repository.ErrDuplicate
		}
	}
	if vendor.ID.IsZero() {
		vendor.ID = primitive.NewObjectID()
	}
	stored := *vendor
	s.vendors[vendor.ID] = &stored
	return nil
}

func (s *VendorStore) FindByEmail(_ context.Context, email string) (*models.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, vendor := range s.vendors {
		if vendor.Email == email {
			out := *vendor
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *VendorStore) FindByID(_ context.Context, id string) (*models.Vendor, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendor, ok := s.vendors[oid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *vendor
	return &out, nil
}

func (s *VendorStore) SetRefreshDigest(_ context.Context, id, digest string, at time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repository.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	vendor, ok := s.vendors[oid]
	if !ok {
		return repository.ErrNotFound
	}
	login := at
	vendor.RefreshTokenDigest = digest
	vendor.LastLogin = &login
	vendor.UpdatedAt = at
	return nil
}

func (s *VendorStore) HealthCheck(context.Context) error { return nil }
