package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	defaultURI      = "mongodb://localhost:27017"
	defaultDatabase = "hardy_pos"

	productsCollection     = "products"
	salesCollection        = "sales"
	customersCollection    = "customers"
	transactionsCollection = "transactions"
	expensesCollection     = "expenses"
	sessionsCollection     = "assistant_sessions"
)

// ClientConfig holds the MongoDB connection settings
type ClientConfig struct {
	URI      string
	Database string
}

// Client wraps the MongoDB client and database
type Client struct {
	*mongo.Client
	Database *mongo.Database
	logger   *zap.Logger
}

// NewClient creates a new MongoDB client connection
func NewClient(ctx context.Context, config ClientConfig, logger *zap.Logger) (*Client, error) {
	if config.URI == "" {
		config.URI = defaultURI
		logger.Info("Using default MongoDB URI", zap.String("uri", config.URI))
	}
	if config.Database == "" {
		config.Database = defaultDatabase
		logger.Info("Using default MongoDB database", zap.String("database", config.Database))
	}

	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(10).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Minute).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Successfully connected to MongoDB", zap.String("database", config.Database))

	return &Client{
		Client:   client,
		Database: client.Database(config.Database),
		logger:   logger,
	}, nil
}

// EnsureIndexes creates the indexes the store queries rely on
func (c *Client) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		productsCollection: {
			{Keys: bson.D{{Key: "stock", Value: 1}}},
			{Keys: bson.D{{Key: "name", Value: 1}}},
		},
		salesCollection: {
			{Keys: bson.D{{Key: "date", Value: -1}}},
		},
		customersCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}}},
		},
		transactionsCollection: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "date", Value: 1}}},
		},
		sessionsCollection: {
			{Keys: bson.D{{Key: "started_at", Value: -1}}},
			{Keys: bson.D{{Key: "ended_at", Value: 1}}},
		},
	}

	for name, models := range indexes {
		if _, err := c.Database.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	c.logger.Info("MongoDB indexes ensured", zap.Int("collections", len(indexes)))
	return nil
}

// Close closes the MongoDB connection
func (c *Client) Close(ctx context.Context) error {
	if err := c.Client.Disconnect(ctx); err != nil {
		c.logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
		return err
	}
	c.logger.Info("Disconnected from MongoDB")
	return nil
}
