package utils

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	TestMongoDBPrefix   = "testonlymongo_"
	mongoConnectTimeout = 10 * time.Second
)

// GetMongoClient connects to MONGODB_URI and pings the primary.
func GetMongoClient(ctx context.Context) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(os.Getenv("MONGODB_URI")))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// GetMongoDatabase returns the database named by MONGODB_DATABASE.
func GetMongoDatabase(ctx context.Context) (*mongo.Database, error) {
	client, err := GetMongoClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.Database(EnvOrDefault("MONGODB_DATABASE", "campusfeed")), nil
}

// CreateTempMongoDB mirrors CreateTempDB for mongo: a throwaway database that
// is dropped after the test. Skipped when MONGODB_URI is unset.
func CreateTempMongoDB(t *testing.T) *mongo.Database {
	t.Helper()
	if os.Getenv("MONGODB_URI") == "" {
		t.Skip("MONGODB_URI is not set, skipping mongo test")
	}
	client, err := GetMongoClient(context.Background())
	if err != nil {
		t.Fatalf("cannot connect to mongo: %s", err)
	}
	db := client.Database(TestMongoDBPrefix + RandomAlphabetString(TestDBNameCharLength))
	t.Cleanup(func() {
		db.Drop(context.Background())
		client.Disconnect(context.Background())
	})
	return db
}
