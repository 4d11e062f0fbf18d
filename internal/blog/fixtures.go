package blog

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v6"
)

// RandomPost returns a fully populated post with random content.
// ID and Created are left for the store.
func RandomPost() *Post {
	return &Post{
		Title:   gofakeit.Sentence(6),
		Content: gofakeit.Paragraph(2, 4, 12, " "),
		Author: Author{
			FirstName: gofakeit.FirstName(),
			LastName:  gofakeit.LastName(),
		},
	}
}

// Seed inserts count random posts and returns them with their ids set.
func Seed(ctx context.Context, repo Repo, count int) ([]*Post, error) {
	posts := make([]*Post, 0, count)
	for i := 0; i < count; i++ {
		p := RandomPost()
		if err := repo.Insert(ctx, p); err != nil {
			return posts, fmt.Errorf("seed post %d: %w", i, err)
		}
		posts = append(posts, p)
	}
	return posts, nil
}
