// Package mongo stores option snapshots in MongoDB.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

const (
	optionsCollection     = "optiontickeritems"
	indexPricesCollection = "tradeindexes"
)

// Store implements the store contract on MongoDB.
type Store struct {
	cfg    config.MongoConfig
	log    *logger.Log
	client *mongo.Client
	db     *mongo.Database
}

func New(cfg config.MongoConfig) *Store {
	return &Store{cfg: cfg, log: logger.GetLogger()}
}

func (s *Store) Connect(ctx context.Context) error {
	log := s.log.WithComponent("mongo_store")
	log.Info("connecting to MongoDB")

	opts := options.Client().
		ApplyURI(s.cfg.URI).
		SetAppName("optionflow").
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetServerSelectionTimeout(s.cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("ping mongo: %w", err)
	}

	s.client = client
	s.db = client.Database(s.cfg.Database)
	log.WithFields(logger.Fields{"database": s.cfg.Database}).Info("MongoDB connected")
	return nil
}

func (s *Store) Disconnect(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	s.db = nil
	return err
}

func (s *Store) NewID() string {
	return primitive.NewObjectID().Hex()
}

func (s *Store) StoreIndexPrice(ctx context.Context, item models.IndexPrice) error {
	if _, err := s.db.Collection(indexPricesCollection).InsertOne(ctx, item); err != nil {
		return fmt.Errorf("store index price: %w", err)
	}
	return nil
}

func (s *Store) StoreOptionBatch(ctx context.Context, batch models.OptionBatch) error {
	docs := make([]interface{}, len(batch.Items))
	for i, item := range batch.Items {
		docs[i] = item
	}
	if _, err := s.db.Collection(optionsCollection).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("store option batch %s/%s: %w", batch.Asset, batch.MaturityDate, err)
	}
	return nil
}
