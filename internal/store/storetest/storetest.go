// Package storetest holds the behaviour every blog.Repo implementation must show.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/blogposts/internal/blog"
)

// NewRepoFunc returns an empty repo, cleaned up by the caller via t.Cleanup.
type NewRepoFunc func(t *testing.T) blog.Repo

func RunRepoTests(t *testing.T, newRepo NewRepoFunc, invalidID string) {
	t.Helper()

	t.Run("insert and find", func(t *testing.T) {
		testInsertAndFind(t, newRepo(t))
	})
	t.Run("insert missing fields", func(t *testing.T) {
		testInsertMissingFields(t, newRepo(t))
	})
	t.Run("find all", func(t *testing.T) {
		testFindAll(t, newRepo(t))
	})
	t.Run("find by unknown id", func(t *testing.T) {
		testFindUnknown(t, newRepo(t), invalidID)
	})
	t.Run("update", func(t *testing.T) {
		testUpdate(t, newRepo(t))
	})
	t.Run("update unknown id", func(t *testing.T) {
		testUpdateUnknown(t, newRepo(t), invalidID)
	})
	t.Run("delete", func(t *testing.T) {
		testDelete(t, newRepo(t), invalidID)
	})
	t.Run("delete all", func(t *testing.T) {
		testDeleteAll(t, newRepo(t))
	})
	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, newRepo(t).Ping(context.Background()))
	})
}

func testInsertAndFind(t *testing.T, repo blog.Repo) {
	ctx := context.Background()

	before := blog.NowCreated()
	post := blog.RandomPost()
	require.NoError(t, repo.Insert(ctx, post))
	require.NotEmpty(t, post.ID)
	assert.False(t, post.Created.Before(before))
	assert.WithinDuration(t, time.Now(), post.Created, 10*time.Second)

	found, err := repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, post.ID, found.ID)
	assert.Equal(t, post.Title, found.Title)
	assert.Equal(t, post.Content, found.Content)
	assert.Equal(t, post.Author, found.Author)
	assert.True(t, post.Created.Equal(found.Created), "created %s != %s", post.Created, found.Created)

	second := blog.RandomPost()
	require.NoError(t, repo.Insert(ctx, second))
	assert.NotEqual(t, post.ID, second.ID)
}

func testInsertMissingFields(t *testing.T, repo blog.Repo) {
	ctx := context.Background()

	for _, mutate := range []func(p *blog.Post){
		func(p *blog.Post) { p.Title = "" },
		func(p *blog.Post) { p.Content = "" },
		func(p *blog.Post) { p.Author.FirstName = "" },
		func(p *blog.Post) { p.Author.LastName = "" },
	} {
		post := blog.RandomPost()
		mutate(post)
		err := repo.Insert(ctx, post)
		require.ErrorIs(t, err, blog.ErrFieldMissing)
		assert.Empty(t, post.ID)
	}

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testFindAll(t *testing.T, repo blog.Repo) {
	ctx := context.Background()

	posts, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)

	inserted, err := blog.Seed(ctx, repo, 5)
	require.NoError(t, err)
	require.Len(t, inserted, 5)

	posts, err = repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 5)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	byID := make(map[string]blog.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	for _, p := range inserted {
		found, ok := byID[p.ID]
		require.True(t, ok, "post %s missing", p.ID)
		assert.Equal(t, p.Title, found.Title)
		assert.Equal(t, p.Author, found.Author)
	}
}

func testFindUnknown(t *testing.T, repo blog.Repo, invalidID string) {
	ctx := context.Background()

	for _, id := range []string{invalidID, "", "not-a-valid-id"} {
		post, err := repo.FindByID(ctx, id)
		assert.ErrorIs(t, err, blog.ErrPostNotFound, "id: %q", id)
		assert.Nil(t, post)
	}
}

func testUpdate(t *testing.T, repo blog.Repo) {
	ctx := context.Background()

	post := blog.RandomPost()
	require.NoError(t, repo.Insert(ctx, post))

	newTitle := gofakeit.Sentence(4)
	require.NoError(t, repo.UpdateByID(ctx, post.ID, blog.PostUpdate{Title: &newTitle}))

	found, err := repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, newTitle, found.Title)
	assert.Equal(t, post.Content, found.Content)
	assert.Equal(t, post.Author, found.Author)
	assert.Equal(t, post.ID, found.ID)
	assert.True(t, post.Created.Equal(found.Created))

	newContent := gofakeit.Paragraph(1, 2, 8, " ")
	newAuthor := blog.Author{FirstName: "Ada", LastName: "Lovelace"}
	require.NoError(t, repo.UpdateByID(ctx, post.ID, blog.PostUpdate{
		Content: &newContent,
		Author:  &newAuthor,
	}))

	found, err = repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, newTitle, found.Title)
	assert.Equal(t, newContent, found.Content)
	assert.Equal(t, newAuthor, found.Author)
	assert.True(t, post.Created.Equal(found.Created))

	empty := ""
	err = repo.UpdateByID(ctx, post.ID, blog.PostUpdate{Title: &empty})
	require.ErrorIs(t, err, blog.ErrFieldMissing)

	found, err = repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, newTitle, found.Title)
}

func testUpdateUnknown(t *testing.T, repo blog.Repo, invalidID string) {
	ctx := context.Background()

	title := "whatever"
	for _, id := range []string{invalidID, "not-a-valid-id"} {
		err := repo.UpdateByID(ctx, id, blog.PostUpdate{Title: &title})
		assert.ErrorIs(t, err, blog.ErrPostNotFound, "id: %q", id)
	}

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testDelete(t *testing.T, repo blog.Repo, invalidID string) {
	ctx := context.Background()

	inserted, err := blog.Seed(ctx, repo, 3)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByID(ctx, inserted[1].ID))

	post, err := repo.FindByID(ctx, inserted[1].ID)
	assert.ErrorIs(t, err, blog.ErrPostNotFound)
	assert.Nil(t, post)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// deleting again, or deleting something never there, is fine
	require.NoError(t, repo.DeleteByID(ctx, inserted[1].ID))
	require.NoError(t, repo.DeleteByID(ctx, invalidID))
	require.NoError(t, repo.DeleteByID(ctx, "not-a-valid-id"))

	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = repo.FindByID(ctx, inserted[0].ID)
	assert.NoError(t, err)
	_, err = repo.FindByID(ctx, inserted[2].ID)
	assert.NoError(t, err)
}

func testDeleteAll(t *testing.T, repo blog.Repo) {
	ctx := context.Background()

	_, err := blog.Seed(ctx, repo, 4)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteAll(ctx))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	posts, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)

	// the repo is usable after being emptied
	require.NoError(t, repo.Insert(ctx, blog.RandomPost()))
	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
