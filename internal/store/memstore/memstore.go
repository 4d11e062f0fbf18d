package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/2beens/blogposts/internal/blog"
)

// Store keeps blog posts in memory, in insertion order.
type Store struct {
	mutex sync.RWMutex
	posts map[string]*blog.Post
	order []string
}

var _ blog.Repo = (*Store)(nil)

func New() *Store {
	return &Store{
		posts: make(map[string]*blog.Post),
	}
}

func (s *Store) Insert(_ context.Context, post *blog.Post) error {
	if err := post.Validate(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	post.ID = uuid.NewString()
	post.Created = blog.NowCreated()

	stored := *post
	s.posts[post.ID] = &stored
	s.order = append(s.order, post.ID)

	return nil
}

func (s *Store) FindAll(_ context.Context) ([]blog.Post, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	posts := make([]blog.Post, 0, len(s.order))
	for _, id := range s.order {
		posts = append(posts, *s.posts[id])
	}
	return posts, nil
}

func (s *Store) FindByID(_ context.Context, id string) (*blog.Post, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, blog.ErrPostNotFound
	}
	found := *post
	return &found, nil
}

func (s *Store) UpdateByID(_ context.Context, id string, update blog.PostUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return blog.ErrPostNotFound
	}
	update.Apply(post)
	return nil
}

func (s *Store) DeleteByID(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.posts[id]; !ok {
		return nil
	}
	delete(s.posts, id)
	for i, orderedID := range s.order {
		if orderedID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.posts), nil
}

func (s *Store) DeleteAll(_ context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.posts = make(map[string]*blog.Post)
	s.order = nil
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}
