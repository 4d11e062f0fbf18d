package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/2beens/blogposts/internal/blog"
	"github.com/2beens/blogposts/internal/db"
)

const (
	CollectionName = "blogposts"

	// mongo error code for an already existing collection
	codeNamespaceExists = 48
)

type mongoPost struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	Title   string             `bson:"title"`
	Content string             `bson:"content"`
	Author  blog.Author        `bson:"author"`
	Created time.Time          `bson:"created"`
}

func (mp *mongoPost) toPost() *blog.Post {
	return &blog.Post{
		ID:      mp.ID.Hex(),
		Title:   mp.Title,
		Content: mp.Content,
		Author:  mp.Author,
		Created: mp.Created.UTC(),
	}
}

// Store keeps blog posts in a schema validated mongo collection.
type Store struct {
	client   *mongo.Client
	database *mongo.Database
	posts    *mongo.Collection
}

var _ blog.Repo = (*Store)(nil)

type OpenParams struct {
	URI            string
	Database       string
	TracingEnabled bool
}

func Open(ctx context.Context, params OpenParams) (*Store, error) {
	client, err := db.NewMongoClient(ctx, db.NewMongoClientParams{
		URI:            params.URI,
		TracingEnabled: params.TracingEnabled,
	})
	if err != nil {
		return nil, err
	}

	s, err := New(ctx, client, params.Database)
	if err != nil {
		if discErr := client.Disconnect(context.Background()); discErr != nil {
			log.Errorf("disconnect mongo client: %s", discErr)
		}
		return nil, err
	}
	return s, nil
}

// New makes sure the posts collection exists, with its validator.
func New(ctx context.Context, client *mongo.Client, database string) (*Store, error) {
	s := &Store{
		client:   client,
		database: client.Database(database),
	}
	s.posts = s.database.Collection(CollectionName)

	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	log.Debugf("mongo store ready: %s.%s", database, CollectionName)
	return s, nil
}

func postSchema() bson.M {
	return bson.M{
		"bsonType": "object",
		"required": bson.A{"title", "content", "author", "created"},
		"properties": bson.M{
			"title":   bson.M{"bsonType": "string", "minLength": 1},
			"content": bson.M{"bsonType": "string", "minLength": 1},
			"author": bson.M{
				"bsonType": "object",
				"required": bson.A{"firstName", "lastName"},
				"properties": bson.M{
					"firstName": bson.M{"bsonType": "string", "minLength": 1},
					"lastName":  bson.M{"bsonType": "string", "minLength": 1},
				},
			},
			"created": bson.M{"bsonType": "date"},
		},
	}
}

func (s *Store) ensureCollection(ctx context.Context) error {
	opts := options.CreateCollection().SetValidator(bson.M{"$jsonSchema": postSchema()})
	err := s.database.CreateCollection(ctx, CollectionName, opts)
	if err == nil {
		return nil
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == codeNamespaceExists {
		return nil
	}
	return fmt.Errorf("create collection %s: %w", CollectionName, err)
}

// Drop removes the whole database and recreates the empty posts collection.
func (s *Store) Drop(ctx context.Context) error {
	if err := s.database.Drop(ctx); err != nil {
		return fmt.Errorf("drop database: %w", err)
	}
	return s.ensureCollection(ctx)
}

func (s *Store) Insert(ctx context.Context, post *blog.Post) error {
	if err := post.Validate(); err != nil {
		return err
	}

	mp := mongoPost{
		ID:      primitive.NewObjectID(),
		Title:   post.Title,
		Content: post.Content,
		Author:  post.Author,
		Created: blog.NowCreated(),
	}
	if _, err := s.posts.InsertOne(ctx, mp); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	post.ID = mp.ID.Hex()
	post.Created = mp.Created
	return nil
}

func (s *Store) FindAll(ctx context.Context) ([]blog.Post, error) {
	cursor, err := s.posts.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "created", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnf("close posts cursor: %s", err)
		}
	}()

	posts := make([]blog.Post, 0)
	for cursor.Next(ctx) {
		var mp mongoPost
		if err := cursor.Decode(&mp); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		posts = append(posts, *mp.toPost())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("posts cursor: %w", err)
	}

	return posts, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*blog.Post, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, blog.ErrPostNotFound
	}

	var mp mongoPost
	if err := s.posts.FindOne(ctx, bson.M{"_id": objectID}).Decode(&mp); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, blog.ErrPostNotFound
		}
		return nil, fmt.Errorf("find post %s: %w", id, err)
	}

	return mp.toPost(), nil
}

func (s *Store) UpdateByID(ctx context.Context, id string, update blog.PostUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return blog.ErrPostNotFound
	}

	set := bson.M{}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.Content != nil {
		set["content"] = *update.Content
	}
	if update.Author != nil {
		set["author"] = *update.Author
	}
	if len(set) == 0 {
		// nothing to set, but the post still has to exist
		_, err := s.FindByID(ctx, id)
		return err
	}

	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update post %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return blog.ErrPostNotFound
	}

	return nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}

	if _, err := s.posts.DeleteOne(ctx, bson.M{"_id": objectID}); err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	count, err := s.posts.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return int(count), nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.posts.DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("delete all posts: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Client exposes the underlying mongo client.
func (s *Store) Client() *mongo.Client {
	return s.client
}
