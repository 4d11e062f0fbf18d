package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2beens/blogposts/internal/blog"
	"github.com/2beens/blogposts/internal/store/storetest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStore(t *testing.T) {
	storetest.RunRepoTests(t, func(t *testing.T) blog.Repo {
		return New()
	}, uuid.NewString())
}

func TestStore_FindAllKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := New()

	inserted, err := blog.Seed(ctx, s, 6)
	require.NoError(t, err)
	require.NoError(t, s.DeleteByID(ctx, inserted[2].ID))

	posts, err := s.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 5)

	wantIDs := []string{inserted[0].ID, inserted[1].ID, inserted[3].ID, inserted[4].ID, inserted[5].ID}
	for i, p := range posts {
		assert.Equal(t, wantIDs[i], p.ID)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	post := blog.RandomPost()
	require.NoError(t, s.Insert(ctx, post))
	originalTitle := post.Title

	post.Title = "changed by the caller"
	found, err := s.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, originalTitle, found.Title)

	found.Title = "changed again"
	foundAgain, err := s.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, originalTitle, foundAgain.Title)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			post := blog.RandomPost()
			if err := s.Insert(ctx, post); err != nil {
				t.Errorf("insert: %s", err)
				return
			}
			title := "updated"
			if err := s.UpdateByID(ctx, post.ID, blog.PostUpdate{Title: &title}); err != nil {
				t.Errorf("update: %s", err)
			}
			if _, err := s.FindAll(ctx); err != nil {
				t.Errorf("find all: %s", err)
			}
		}()
	}
	wg.Wait()

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, count)
}
