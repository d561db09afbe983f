package store

import (
	"context"
	"strings"
	"time"

	"github.com/Luismorlan/campusfeed/model"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	PostsCollection = "posts"

	// Server clock of the mongo deployment, only valid inside aggregation
	// pipeline updates.
	mongoNow = "$$NOW"
)

var mongoMembershipFields = map[model.Engagement][2]string{
	model.EngagementLike:   {"likedBy", "likeCount"},
	model.EngagementRepost: {"repostedBy", "repostCount"},
}

// MongoStore keeps every post as a single document with its membership sets
// embedded, so every ledger operation is one atomic document update. Change
// notifications come from a change stream, which requires a replica set.
type MongoStore struct {
	posts *mongo.Collection
}

// NewMongoStore ensures the feed order index on the posts collection of db.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	posts := db.Collection(PostsCollection)
	_, err := posts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "pinned", Value: -1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("feed_order"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "fail to create feed order index")
	}
	return &MongoStore{posts: posts}, nil
}

// literal stops user supplied strings from being read as field paths or
// operators inside pipeline expressions.
func literal(v interface{}) bson.D {
	return bson.D{{Key: "$literal", Value: v}}
}

func normalize(p *model.Post) *model.Post {
	if p.LikedBy == nil {
		p.LikedBy = []string{}
	}
	if p.RepostedBy == nil {
		p.RepostedBy = []string{}
	}
	if p.EditedAt != nil {
		t := p.EditedAt.UTC()
		p.EditedAt = &t
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p
}

func (s *MongoStore) decodeOne(res *mongo.SingleResult, postId string) (*model.Post, error) {
	post := &model.Post{}
	err := res.Decode(post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(postId)
	}
	if err != nil {
		return nil, err
	}
	normalize(post)
	if err := post.Validate(); err != nil {
		return nil, errors.Wrapf(err, "stored post %s is malformed", postId)
	}
	return post, nil
}

func (s *MongoStore) CreatePost(ctx context.Context, draft *model.Post) (*model.Post, error) {
	if draft == nil {
		return nil, errors.Wrap(model.ErrInvalidArgument, "nil post")
	}
	if err := draft.ValidateDraft(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	set := bson.D{
		{Key: "authorId", Value: literal(draft.AuthorId)},
		{Key: "authorName", Value: literal(draft.AuthorName)},
		{Key: "authorAvatarUrl", Value: literal(draft.AuthorAvatarUrl)},
		{Key: "body", Value: literal(draft.Body)},
		{Key: "createdAt", Value: mongoNow},
		{Key: "pinned", Value: false},
		{Key: "likeCount", Value: 0},
		{Key: "repostCount", Value: 0},
		{Key: "shareCount", Value: 0},
		{Key: "commentCount", Value: 0},
		{Key: "likedBy", Value: literal(bson.A{})},
		{Key: "repostedBy", Value: literal(bson.A{})},
		{Key: "version", Value: int64(1)},
	}
	if draft.ParentPostId != nil {
		set = append(set, bson.E{Key: "parentPostId", Value: literal(*draft.ParentPostId)})
	}
	// An upsert with a pipeline is the only way to get the server clock on
	// insert.
	res := s.posts.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		mongo.Pipeline{{{Key: "$set", Value: set}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	return s.decodeOne(res, id)
}

func (s *MongoStore) GetPost(ctx context.Context, postId string) (*model.Post, error) {
	if err := validateIds(postId); err != nil {
		return nil, err
	}
	return s.decodeOne(s.posts.FindOne(ctx, bson.D{{Key: "_id", Value: postId}}), postId)
}

func (s *MongoStore) EditPost(ctx context.Context, req EditRequest) (*model.Post, error) {
	if err := validateIds(req.PostId, req.AuthorId); err != nil {
		return nil, err
	}
	// Length is checked here, emptiness depends on whether the stored post is
	// a quote and is part of the filter.
	if err := model.ValidateBody(req.Body, true); err != nil {
		return nil, err
	}
	emptyBody := strings.TrimSpace(req.Body) == ""

	filter := bson.D{{Key: "_id", Value: req.PostId}, {Key: "authorId", Value: req.AuthorId}}
	if req.IfVersion != 0 {
		filter = append(filter, bson.E{Key: "version", Value: req.IfVersion})
	}
	if emptyBody {
		filter = append(filter, bson.E{Key: "parentPostId", Value: bson.D{{Key: "$type", Value: "string"}}})
	}
	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "body", Value: literal(req.Body)},
		{Key: "editedAt", Value: mongoNow},
		{Key: "version", Value: bson.D{{Key: "$add", Value: bson.A{"$version", 1}}}},
	}}}}

	post, err := s.decodeOne(s.posts.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)), req.PostId)
	if err == nil {
		return post, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	// The conditional update missed, find out which condition failed.
	current, err := s.GetPost(ctx, req.PostId)
	if err != nil {
		return nil, err
	}
	switch {
	case current.AuthorId != req.AuthorId:
		return nil, errors.Wrapf(model.ErrForbidden, "%s is not the author of post %s", req.AuthorId, req.PostId)
	case req.IfVersion != 0 && current.Version != req.IfVersion:
		return nil, errors.Wrapf(model.ErrConflict, "post %s is at version %d, not %d", req.PostId, current.Version, req.IfVersion)
	case emptyBody:
		return nil, model.ValidateBody(req.Body, false)
	}
	return nil, errors.Wrapf(model.ErrConflict, "post %s changed during edit", req.PostId)
}

func (s *MongoStore) SetPinned(ctx context.Context, postId string, pinned bool) (*model.Post, error) {
	if err := validateIds(postId); err != nil {
		return nil, err
	}
	res := s.posts.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: postId}, {Key: "pinned", Value: bson.D{{Key: "$ne", Value: pinned}}}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "pinned", Value: pinned}}},
			{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	post, err := s.decodeOne(res, postId)
	if errors.Is(err, model.ErrNotFound) {
		// Either missing or already in the requested state.
		return s.GetPost(ctx, postId)
	}
	return post, err
}

func (s *MongoStore) DeletePost(ctx context.Context, postId string) error {
	if err := validateIds(postId); err != nil {
		return err
	}
	res, err := s.posts.DeleteOne(ctx, bson.D{{Key: "_id", Value: postId}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return notFound(postId)
	}
	return nil
}

func cursorFilter(c *model.FeedCursor) bson.D {
	if c == nil {
		return bson.D{}
	}
	older := bson.A{
		bson.D{{Key: "createdAt", Value: bson.D{{Key: "$lt", Value: c.CreatedAt}}}},
		bson.D{{Key: "createdAt", Value: c.CreatedAt}, {Key: "_id", Value: bson.D{{Key: "$gt", Value: c.Id}}}},
	}
	if c.Pinned {
		return bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "pinned", Value: true}, {Key: "$or", Value: older}},
			bson.D{{Key: "pinned", Value: false}},
		}}}
	}
	return bson.D{{Key: "pinned", Value: false}, {Key: "$or", Value: older}}
}

func (s *MongoStore) ListPosts(ctx context.Context, q ListQuery) ([]*model.Post, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "pinned", Value: -1},
		{Key: "createdAt", Value: -1},
		{Key: "_id", Value: 1},
	})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.posts.Find(ctx, cursorFilter(q.After), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	posts := []*model.Post{}
	for cur.Next(ctx) {
		post := &model.Post{}
		if err := cur.Decode(post); err != nil {
			return nil, err
		}
		normalize(post)
		if err := post.Validate(); err != nil {
			Logger.Log.Errorf("skip malformed post document: %s", err)
			continue
		}
		posts = append(posts, post)
	}
	return posts, cur.Err()
}

func (s *MongoStore) ToggleMembership(ctx context.Context, postId string, e model.Engagement, userId string) (*MembershipResult, error) {
	if err := validateIds(postId, userId); err != nil {
		return nil, err
	}
	fields, ok := mongoMembershipFields[e]
	if !ok {
		return nil, errors.Wrapf(model.ErrInvalidArgument, "unknown engagement %s", e)
	}
	setField, countField := fields[0], fields[1]
	current := bson.D{{Key: "$ifNull", Value: bson.A{"$" + setField, bson.A{}}}}
	user := literal(userId)

	// Remove when present, append when absent, then derive the counter from
	// the resulting set. Both stages apply to the same document atomically.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: setField, Value: bson.D{{Key: "$cond", Value: bson.D{
			{Key: "if", Value: bson.D{{Key: "$in", Value: bson.A{user, current}}}},
			{Key: "then", Value: bson.D{{Key: "$setDifference", Value: bson.A{current, bson.A{user}}}}},
			{Key: "else", Value: bson.D{{Key: "$concatArrays", Value: bson.A{current, bson.A{user}}}}},
		}}}}}}},
		{{Key: "$set", Value: bson.D{{Key: countField, Value: bson.D{{Key: "$size", Value: "$" + setField}}}}}},
	}
	post, err := s.decodeOne(s.posts.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: postId}}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)), postId)
	if err != nil {
		return nil, err
	}
	members := post.Members(e)
	member := false
	for _, id := range members {
		if id == userId {
			member = true
			break
		}
	}
	return &MembershipResult{Member: member, Count: post.Count(e)}, nil
}

func (s *MongoStore) IncrementShares(ctx context.Context, postId string) (*model.Post, error) {
	if err := validateIds(postId); err != nil {
		return nil, err
	}
	res := s.posts.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: postId}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "shareCount", Value: 1}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	return s.decodeOne(res, postId)
}

type mongoTotals struct {
	TotalPosts   int `bson:"totalPosts"`
	TotalLikes   int `bson:"totalLikes"`
	TotalReposts int `bson:"totalReposts"`
	TotalShares  int `bson:"totalShares"`
}

func (s *MongoStore) Totals(ctx context.Context) (*model.CommunityStats, error) {
	cur, err := s.posts.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "totalPosts", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "totalLikes", Value: bson.D{{Key: "$sum", Value: "$likeCount"}}},
			{Key: "totalReposts", Value: bson.D{{Key: "$sum", Value: "$repostCount"}}},
			{Key: "totalShares", Value: bson.D{{Key: "$sum", Value: "$shareCount"}}},
		}}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "fail to aggregate post totals")
	}
	defer cur.Close(ctx)

	totals := mongoTotals{}
	if cur.Next(ctx) {
		if err := cur.Decode(&totals); err != nil {
			return nil, err
		}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return &model.CommunityStats{
		TotalPosts:   totals.TotalPosts,
		TotalLikes:   totals.TotalLikes,
		TotalReposts: totals.TotalReposts,
		TotalShares:  totals.TotalShares,
	}, nil
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		Id string `bson:"_id"`
	} `bson:"documentKey"`
}

var changeTypes = map[string]model.ChangeType{
	"insert":  model.ChangeTypeCreated,
	"update":  model.ChangeTypeUpdated,
	"replace": model.ChangeTypeUpdated,
	"delete":  model.ChangeTypeDeleted,
}

// Watch opens a change stream on the posts collection. The returned channel
// closes when ctx is done or the stream fails.
func (s *MongoStore) Watch(ctx context.Context) (<-chan *model.PostChange, error) {
	stream, err := s.posts.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, errors.Wrap(err, "fail to open change stream")
	}

	out := make(chan *model.PostChange, 100)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			event := changeEvent{}
			if err := stream.Decode(&event); err != nil {
				Logger.Log.Errorf("drop malformed change event: %s", err)
				continue
			}
			t, ok := changeTypes[event.OperationType]
			if !ok {
				continue
			}
			select {
			case out <- &model.PostChange{Type: t, PostId: event.DocumentKey.Id, At: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			Logger.Log.Errorf("change stream failed: %s", err)
		}
	}()
	return out, nil
}

func (s *MongoStore) Close() error {
	return s.posts.Database().Client().Disconnect(context.Background())
}
