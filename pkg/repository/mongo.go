package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoMirror stores one document per order with the order id as _id.
type MongoMirror struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoMirror(ctx context.Context, cfg *config.MongoDBConfig) (*MongoMirror, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	return &MongoMirror{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func newMongoMirrorWith(coll *mongo.Collection) *MongoMirror {
	return &MongoMirror{collection: coll}
}

func (m *MongoMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoMirror) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

// CreateOrder inserts the order. A duplicate _id means an earlier push already
// landed, which counts as success.
func (m *MongoMirror) CreateOrder(ctx context.Context, order models.Order) error {
	_, err := m.collection.InsertOne(ctx, order)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mongo insert order %s: %w", order.ID, err)
	}
	return nil
}

func (m *MongoMirror) GetOrders(ctx context.Context, userID string) ([]models.Order, error) {
	cursor, err := m.collection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("mongo find orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := []models.Order{}
	if err = cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("mongo decode orders: %w", err)
	}
	return orders, nil
}
