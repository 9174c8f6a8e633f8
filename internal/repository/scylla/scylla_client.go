package scylla

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"marketplace-auth/internal/config"
)

// Statements are prepared by the driver on first use and cached per session.
type Statements struct {
	InsertAuthEvent string
	EventsByBucket  string
}

const authEventsSchema = `
    CREATE TABLE IF NOT EXISTS auth_events (
        event_bucket int,
        date_bucket text,
        occurred_at timestamp,
        event_id uuid,
        event_type text,
        identifier text,
        user_id text,
        otp_type text,
        channel text,
        outcome text,
        remote_addr text,
        PRIMARY KEY ((event_bucket, date_bucket), occurred_at, event_id)
    ) WITH CLUSTERING ORDER BY (occurred_at DESC, event_id ASC)
      AND default_time_to_live = 7776000`

type ScyllaClient struct {
	Session    *gocql.Session
	Statements Statements
	config     *config.ScyllaConfig
	logger     *zap.Logger
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 2
	cluster.SocketKeepalive = 30 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 envOr("SCYLLA_CA_FILE", "/app/certs/scylla-ca.pem"),
			CertPath:               envOr("SCYLLA_CERT_FILE", "/app/certs/scylla.pem"),
			KeyPath:                envOr("SCYLLA_KEY_FILE", "/app/certs/scylla.key"),
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		Statements: Statements{
			InsertAuthEvent: `
        INSERT INTO auth_events (
            event_bucket, date_bucket, occurred_at, event_id, event_type,
            identifier, user_id, otp_type, channel, outcome, remote_addr
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			EventsByBucket: `
        SELECT event_id, event_type, identifier, user_id, otp_type, channel, outcome, remote_addr, occurred_at
        FROM auth_events WHERE event_bucket = ? AND date_bucket = ? LIMIT ?`,
		},
		config: &scyllaConfig,
		logger: logger,
	}

	if err := session.Query(authEventsSchema).Exec(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to create auth_events table: %w", err)
	}

	logger.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) Close() error {
	if s.Session != nil {
		s.Session.Close()
		s.logger.Info("ScyllaDB client closed")
	}
	return nil
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

// ExecuteWithRetry runs query up to maxRetries+1 times with linear backoff.
func (s *ScyllaClient) ExecuteWithRetry(ctx context.Context, query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if lastErr = query.WithContext(ctx).Exec(); lastErr == nil {
			return nil
		}
		if i < maxRetries {
			select {
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
