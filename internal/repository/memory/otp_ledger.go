// Package memory provides process-local stores used by STORE_DRIVER=memory and by tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"marketplace-auth/internal/models"
	"marketplace-auth/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ledgerEntry struct {
	seq    int64
	record models.OTPRecord
}

// OTPLedger keeps OTP records in a map guarded by a mutex.
type OTPLedger struct {
	mu      sync.RWMutex
	seq     int64
	records map[primitive.ObjectID]*ledgerEntry
}

func NewOTPLedger() *OTPLedger {
	return &OTPLedger{records: make(map[primitive.ObjectID]*ledgerEntry)}
}

func (l *OTPLedger) Insert(_ context.Context, rec *models.OTPRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	l.seq++
	l.records[rec.ID] = &ledgerEntry{seq: l.seq, record: *rec}
	return nil
}

func (l *OTPLedger) FindRecent(_ context.Context, key models.LedgerKey, since time.Time) (*models.OTPRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.newest(func(r *models.OTPRecord) bool {
		return r.Key().Identifier == key.Identifier &&
			r.Type == key.Type &&
			r.Delivery != models.DeliveryFailed &&
			r.CreatedAt.After(since)
	})
}

func (l *OTPLedger) FindLatest(_ context.Context, identifier string, types []models.OTPType) (*models.OTPRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.newest(func(r *models.OTPRecord) bool {
		return r.Identifier == identifier &&
			slices.Contains(types, r.Type) &&
			!r.IsVerified &&
			r.Delivery == models.DeliverySent
	})
}

func (l *OTPLedger) MarkDelivery(_ context.Context, id primitive.ObjectID, state models.DeliveryState, channel models.Channel, provider string, at time.Time) error {
	return l.update(id, func(r *models.OTPRecord) {
		r.Delivery = state
		r.Channel = channel
		r.Provider = provider
		r.UpdatedAt = at
		if state == models.DeliverySent {
			sentAt := at
			r.SentAt = &sentAt
		}
	})
}

func (l *OTPLedger) IncrementAttempts(_ context.Context, id primitive.ObjectID, at time.Time) (int, error) {
	var attempts int
	err := l.update(id, func(r *models.OTPRecord) {
		r.Attempts++
		r.UpdatedAt = at
		attempts = r.Attempts
	})
	return attempts, err
}

func (l *OTPLedger) MarkExpired(_ context.Context, id primitive.ObjectID, at time.Time) error {
	return l.update(id, func(r *models.OTPRecord) {
		r.IsExpired = true
		r.UpdatedAt = at
	})
}

func (l *OTPLedger) MarkBlocked(_ context.Context, id primitive.ObjectID, at time.Time) error {
	return l.update(id, func(r *models.OTPRecord) {
		r.IsBlocked = true
		r.UpdatedAt = at
	})
}

func (l *OTPLedger) MarkVerified(_ context.Context, id primitive.ObjectID, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.records[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if entry.record.IsVerified {
		return false, nil
	}
	verifiedAt := at
	entry.record.IsVerified = true
	entry.record.VerifiedAt = &verifiedAt
	entry.record.UpdatedAt = at
	return true, nil
}

func (l *OTPLedger) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var deleted int64
	for id, entry := range l.records {
		if !entry.record.IsVerified && entry.record.ExpiresAt.Before(before) {
			delete(l.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (l *OTPLedger) FailStalePending(_ context.Context, before, at time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var failed int64
	for _, entry := range l.records {
		if entry.record.Delivery == models.DeliveryPending && entry.record.CreatedAt.Before(before) {
			entry.record.Delivery = models.DeliveryFailed
			entry.record.UpdatedAt = at
			failed++
		}
	}
	return failed, nil
}

func (l *OTPLedger) HealthCheck(context.Context) error { return nil }

// Get returns a copy of the record with the given id.
func (l *OTPLedger) Get(id primitive.ObjectID) (models.OTPRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.records[id]
	if !ok {
		return models.OTPRecord{}, false
	}
	return entry.record, true
}

// All returns copies of every record in insertion order.
func (l *OTPLedger) All() []models.OTPRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]*ledgerEntry, 0, len(l.records))
	for _, entry := range l.records {
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b *ledgerEntry) int { return int(a.seq - b.seq) })

	out := make([]models.OTPRecord, len(entries))
	for i, entry := range entries {
		out[i] = entry.record
	}
	return out
}

// newest must be called with the lock held.
func (l *OTPLedger) newest(match func(*models.OTPRecord) bool) (*models.OTPRecord, error) {
	var best *ledgerEntry
	for _, entry := range l.records {
		if !match(&entry.record) {
			continue
		}
		if best == nil ||
			entry.record.CreatedAt.After(best.record.CreatedAt) ||
			(entry.record.CreatedAt.Equal(best.record.CreatedAt) && entry.seq > best.seq) {
			best = entry
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	rec := best.record
	return &rec, nil
}

func (l *OTPLedger) update(id primitive.ObjectID, fn func(*models.OTPRecord)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&entry.record)
	return nil
}
