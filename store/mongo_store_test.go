package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/Luismorlan/campusfeed/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMongoStoreContract(t *testing.T) {
	// Change streams need a replica set, MONGODB_URI may point to a standalone
	// server in which case Watch is not exercised.
	if os.Getenv("MONGODB_URI") != "" && os.Getenv("MONGODB_REPLICA_SET") == "" {
		t.Skip("MONGODB_REPLICA_SET is not set, skipping mongo contract test")
	}
	testStoreContract(t, func(t *testing.T) Store {
		db := utils.CreateTempMongoDB(t)
		s, err := NewMongoStore(context.Background(), db)
		require.NoError(t, err)
		return s
	})
}

func TestMongoStoreRejectsDriftedDocument(t *testing.T) {
	db := utils.CreateTempMongoDB(t)
	ctx := context.Background()
	s, err := NewMongoStore(ctx, db)
	require.NoError(t, err)

	_, err = db.Collection(PostsCollection).InsertOne(ctx, bson.M{
		"_id":       "drifted",
		"authorId":  "user_a",
		"body":      "counter without members",
		"createdAt": time.Now(),
		"likeCount": 3,
		"likedBy":   bson.A{"u1"},
		"version":   1,
	})
	require.NoError(t, err)

	_, err = s.GetPost(ctx, "drifted")
	assert.Error(t, err)

	posts, err := s.ListPosts(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestMongoStoreTreatsUserIdsAsLiterals(t *testing.T) {
	db := utils.CreateTempMongoDB(t)
	ctx := context.Background()
	s, err := NewMongoStore(ctx, db)
	require.NoError(t, err)

	p, err := s.CreatePost(ctx, &model.Post{AuthorId: "user_a", Body: "$likedBy"})
	require.NoError(t, err)
	assert.Equal(t, "$likedBy", p.Body)

	res, err := s.ToggleMembership(ctx, p.Id, model.EngagementLike, "user.with.dots")
	require.NoError(t, err)
	assert.True(t, res.Member)

	got, err := s.GetPost(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, []string{"user.with.dots"}, got.LikedBy)
}
