package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/blogposts/internal/blog"
	"github.com/2beens/blogposts/pkg"
)

var bucketName = []byte("blogposts")

// Store keeps blog posts as JSON documents in an embedded bolt file.
type Store struct {
	db *bolt.DB
}

var _ blog.Repo = (*Store)(nil)

// Open opens (or creates) the bolt file at path.
func Open(path string) (*Store, error) {
	if err := pkg.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("ensure bolt dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}

	s, err := New(db)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Errorf("close bolt db: %s", closeErr)
		}
		return nil, err
	}

	log.Debugf("bolt store opened: %s", path)
	return s, nil
}

func New(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketName); err != nil {
			return fmt.Errorf("could not ensure bucket %q exists: %w", bucketName, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Insert(_ context.Context, post *blog.Post) error {
	if err := post.Validate(); err != nil {
		return err
	}

	toStore := *post
	toStore.ID = uuid.NewString()
	toStore.Created = blog.NowCreated()

	doc, err := json.Marshal(toStore)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(toStore.ID), doc)
	}); err != nil {
		return fmt.Errorf("put post: %w", err)
	}

	post.ID = toStore.ID
	post.Created = toStore.Created
	return nil
}

func (s *Store) FindAll(_ context.Context) ([]blog.Post, error) {
	posts := make([]blog.Post, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, v []byte) error {
			var p blog.Post
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshal post %s: %w", k, err)
			}
			posts = append(posts, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Store) FindByID(_ context.Context, id string) (*blog.Post, error) {
	var post *blog.Post
	err := s.db.View(func(tx *bolt.Tx) error {
		p, err := getPost(tx, id)
		if err != nil {
			return err
		}
		post = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (s *Store) UpdateByID(_ context.Context, id string, update blog.PostUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		post, err := getPost(tx, id)
		if err != nil {
			return err
		}

		update.Apply(post)
		doc, err := json.Marshal(post)
		if err != nil {
			return fmt.Errorf("marshal post: %w", err)
		}
		return tx.Bucket(bucketName).Put([]byte(id), doc)
	})
}

func (s *Store) DeleteByID(_ context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(id))
	})
}

func (s *Store) Count(_ context.Context) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketName).Stats().KeyN
		return nil
	})
	return count, err
}

func (s *Store) DeleteAll(_ context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil && err != bolt.ErrBucketNotFound {
			return fmt.Errorf("delete bucket: %w", err)
		}
		_, err := tx.CreateBucket(bucketName)
		return err
	})
}

func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketName) == nil {
			return fmt.Errorf("bucket %q missing", bucketName)
		}
		return nil
	})
}

func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

func getPost(tx *bolt.Tx, id string) (*blog.Post, error) {
	if id == "" {
		return nil, blog.ErrPostNotFound
	}
	doc := tx.Bucket(bucketName).Get([]byte(id))
	if doc == nil {
		return nil, blog.ErrPostNotFound
	}

	var post blog.Post
	if err := json.Unmarshal(doc, &post); err != nil {
		return nil, fmt.Errorf("unmarshal post %s: %w", id, err)
	}
	return &post, nil
}
