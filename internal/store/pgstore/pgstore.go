package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/blogposts/internal/blog"
	"github.com/2beens/blogposts/internal/db"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS blog_post
(
    id      TEXT PRIMARY KEY,
    doc     JSONB       NOT NULL,
    created TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_blog_post_created ON blog_post (created);
`

// postDoc is the JSONB document stored for each post.
type postDoc struct {
	Title   string      `json:"title"`
	Content string      `json:"content"`
	Author  blog.Author `json:"author"`
}

// Store keeps blog posts as JSONB documents in postgres.
type Store struct {
	db *pgxpool.Pool
}

var _ blog.Repo = (*Store)(nil)

type OpenParams struct {
	ConnString     string
	TracingEnabled bool
}

func Open(ctx context.Context, params OpenParams) (*Store, error) {
	pool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		ConnString:     params.ConnString,
		TracingEnabled: params.TracingEnabled,
	})
	if err != nil {
		return nil, err
	}

	s, err := New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New makes sure the blog_post table exists.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("create blog_post table: %w", err)
	}
	log.Debugf("pg store ready")
	return &Store{db: pool}, nil
}

// Pool exposes the underlying pool, e.g. for pool stats collection.
func (s *Store) Pool() *pgxpool.Pool {
	return s.db
}

func (s *Store) Insert(ctx context.Context, post *blog.Post) error {
	if err := post.Validate(); err != nil {
		return err
	}

	id := uuid.NewString()
	created := blog.NowCreated()
	doc := postDoc{
		Title:   post.Title,
		Content: post.Content,
		Author:  post.Author,
	}

	if _, err := s.db.Exec(
		ctx,
		`INSERT INTO blog_post (id, doc, created) VALUES ($1, $2, $3);`,
		id, doc, created,
	); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	post.ID = id
	post.Created = created
	return nil
}

func (s *Store) FindAll(ctx context.Context) ([]blog.Post, error) {
	rows, err := s.db.Query(ctx, `SELECT id, doc, created FROM blog_post ORDER BY created;`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]blog.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return posts, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*blog.Post, error) {
	row := s.db.QueryRow(ctx, `SELECT id, doc, created FROM blog_post WHERE id = $1;`, id)
	post, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, blog.ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (s *Store) UpdateByID(ctx context.Context, id string, update blog.PostUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	patch, err := json.Marshal(updatePatch(update))
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}

	tag, err := s.db.Exec(
		ctx,
		`UPDATE blog_post SET doc = doc || $2::jsonb WHERE id = $1;`,
		id, string(patch),
	)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return blog.ErrPostNotFound
	}

	return nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM blog_post WHERE id = $1;`, id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM blog_post;`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM blog_post;`); err != nil {
		return fmt.Errorf("delete all posts: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close(_ context.Context) error {
	s.db.Close()
	return nil
}

func scanPost(row pgx.Row) (*blog.Post, error) {
	var (
		id      string
		doc     postDoc
		created time.Time
	)
	if err := row.Scan(&id, &doc, &created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan post: %w", err)
	}
	return &blog.Post{
		ID:      id,
		Title:   doc.Title,
		Content: doc.Content,
		Author:  doc.Author,
		Created: created.UTC(),
	}, nil
}

// updatePatch holds only the fields to set; the top level jsonb
// concatenation replaces them and keeps the rest of the document.
func updatePatch(update blog.PostUpdate) map[string]any {
	patch := make(map[string]any, 3)
	if update.Title != nil {
		patch["title"] = *update.Title
	}
	if update.Content != nil {
		patch["content"] = *update.Content
	}
	if update.Author != nil {
		patch["author"] = *update.Author
	}
	return patch
}
