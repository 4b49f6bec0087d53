// Copyright 2025 ChatBridge
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mongostore persists credential bundles in MongoDB, one
// document per session key (the DOCUMENT storage kind).
package mongostore

import (
	"context"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatbridge/platform/credstore"
)

const defaultCollection = "credential_bundles"

type bundleDocument struct {
	ID        string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Store keeps one document per session key.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *log.Logger
}

// New connects to MongoDB and verifies the connection with a ping.
func New(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		database = "chatbridge"
	}

	clientOpts := options.Client().ApplyURI(uri)
	clientOpts.SetConnectTimeout(10 * time.Second)
	clientOpts.SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, credstore.NewStoreError("mongostore", "New", "failed to connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, credstore.NewStoreError("mongostore", "New", "failed to ping", err)
	}

	return &Store{
		client:     client,
		collection: client.Database(database).Collection(defaultCollection),
		logger:     log.New(os.Stdout, "[CREDSTORE_MONGO] ", log.LstdFlags),
	}, nil
}

// Load reads the bundle document for a session key. A missing document
// yields a fresh empty bundle.
func (s *Store) Load(ctx context.Context, sessionKey string) (*credstore.Bundle, error) {
	var doc bundleDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": sessionKey}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return &credstore.Bundle{}, nil
	}
	if err != nil {
		return nil, credstore.NewStoreError("mongostore", "Load", "failed to find bundle", err)
	}
	return &credstore.Bundle{Data: doc.Data}, nil
}

// Save replaces the bundle document for a session key, inserting it if
// absent.
func (s *Store) Save(ctx context.Context, sessionKey string, bundle *credstore.Bundle) error {
	doc := bundleDocument{
		ID:        sessionKey,
		Data:      bundle.Data,
		UpdatedAt: time.Now().UTC(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": sessionKey}, doc, opts); err != nil {
		return credstore.NewStoreError("mongostore", "Save", "failed to upsert bundle", err)
	}
	return nil
}

// Delete removes the bundle document. A missing document is a no-op.
func (s *Store) Delete(ctx context.Context, sessionKey string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": sessionKey}); err != nil {
		return credstore.NewStoreError("mongostore", "Delete", "failed to delete bundle", err)
	}
	return nil
}

// Kind returns the backend kind.
func (s *Store) Kind() credstore.Kind {
	return credstore.KindDocument
}

// Close disconnects from MongoDB.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
