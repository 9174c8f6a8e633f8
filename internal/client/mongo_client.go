package client

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/util"
)

// MongoClient owns the connection pool shared by the users, otp_logs and cab_vendor repositories.
type MongoClient struct {
	Client   *mongo.Client
	Database *mongo.Database
	config   *config.MongoConfig
}

// NewMongoClient connects once at startup and pings the primary.
func NewMongoClient(cfg *config.Config, logger *zap.Logger) (*MongoClient, error) {
	mongoConfig := cfg.Mongo

	opts := options.Client().
		ApplyURI(mongoConfig.URI).
		SetConnectTimeout(mongoConfig.ConnectTimeout).
		SetServerSelectionTimeout(mongoConfig.ConnectTimeout).
		SetMaxPoolSize(mongoConfig.MaxPoolSize).
		SetRetryWrites(true)

	ctx, cancel := context.WithTimeout(context.Background(), mongoConfig.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	util.Info("MongoDB client initialized",
		zap.String("database", mongoConfig.Database),
		zap.Uint64("max_pool_size", mongoConfig.MaxPoolSize))

	return &MongoClient{
		Client:   client,
		Database: client.Database(mongoConfig.Database),
		config:   &mongoConfig,
	}, nil
}

func (m *MongoClient) Collection(name string) *mongo.Collection {
	return m.Database.Collection(name)
}

// HealthCheck pings the primary and runs a trivial server command.
func (m *MongoClient) HealthCheck(ctx context.Context) error {
	if err := m.Client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	if err := m.Database.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return fmt.Errorf("mongodb command failed: %w", err)
	}
	return nil
}

func (m *MongoClient) Close() error {
	if m.Client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.Client.Disconnect(ctx); err != nil {
		util.Error("failed to close MongoDB client", zap.Error(err))
		return err
	}
	util.Info("MongoDB client closed")
	return nil
}
