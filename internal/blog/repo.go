package blog

import "context"

// Repo is a document collection of blog posts.
type Repo interface {
	// Insert validates the post, then assigns its ID and Created.
	Insert(ctx context.Context, post *Post) error
	FindAll(ctx context.Context) ([]Post, error)
	// FindByID returns ErrPostNotFound when there is no such post.
	FindByID(ctx context.Context, id string) (*Post, error)
	// UpdateByID returns ErrPostNotFound when there is no such post.
	UpdateByID(ctx context.Context, id string, update PostUpdate) error
	// DeleteByID does not fail for an absent id.
	DeleteByID(ctx context.Context, id string) error

	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
