package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"marketplace-auth/internal/bucketing"
	"marketplace-auth/internal/models"
)

// SecurityEventRepository stores auth events in day partitions spread over event buckets.
type SecurityEventRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
	logger  *zap.Logger
}

func NewSecurityEventRepository(client *ScyllaClient, buckets *bucketing.BucketingManager, logger *zap.Logger) *SecurityEventRepository {
	return &SecurityEventRepository{client: client, buckets: buckets, logger: logger}
}

func (r *SecurityEventRepository) Record(ctx context.Context, event models.AuthEvent) error {
	eventID, err := gocql.ParseUUID(event.ID)
	if err != nil {
		eventID = gocql.TimeUUID()
	}
	assignment := r.buckets.Assign(event.Identifier, event.OccurredAt)

	query := r.client.Session.Query(r.client.Statements.InsertAuthEvent,
		assignment.EventBucket, assignment.DateBucket, event.OccurredAt, eventID, string(event.Type),
		event.Identifier, event.UserID, string(event.OTPType), string(event.Channel), event.Outcome, event.RemoteAddr)

	if err := r.client.ExecuteWithRetry(ctx, query, 2); err != nil {
		r.logger.Error("Failed to record auth event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
		return fmt.Errorf("failed to record auth event: %w", err)
	}
	return nil
}

// Recent returns up to limit events from the partition identifier hashes to on day.
func (r *SecurityEventRepository) Recent(ctx context.Context, identifier string, day time.Time, limit int) ([]models.AuthEvent, error) {
	assignment := r.buckets.Assign(identifier, day)
	iter := r.client.Session.Query(r.client.Statements.EventsByBucket,
		assignment.EventBucket, assignment.DateBucket, limit).WithContext(ctx).Iter()

	var (
		events                                                 []models.AuthEvent
		id                                                     gocql.UUID
		typ, ident, userID, otpType, channel, outcome, address string
		occurredAt                                             time.Time
	)
	for iter.Scan(&id, &typ, &ident, &userID, &otpType, &channel, &outcome, &address, &occurredAt) {
		events = append(events, models.AuthEvent{
			ID:         id.String(),
			Type:       models.AuthEventType(typ),
			Identifier: ident,
			UserID:     userID,
			OTPType:    models.OTPType(otpType),
			Channel:    models.Channel(channel),
			Outcome:    outcome,
			RemoteAddr: address,
			OccurredAt: occurredAt,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read auth events: %w", err)
	}
	return events, nil
}
