package blog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrPostNotFound = errors.New("blog post not found")
	ErrFieldMissing = errors.New("required field missing")
)

type Author struct {
	FirstName string `json:"firstName" bson:"firstName"`
	LastName  string `json:"lastName" bson:"lastName"`
}

// Name is the display form of the author, as exposed to clients.
func (a Author) Name() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

func (a Author) validate() error {
	if a.FirstName == "" {
		return fmt.Errorf("author.firstName: %w", ErrFieldMissing)
	}
	if a.LastName == "" {
		return fmt.Errorf("author.lastName: %w", ErrFieldMissing)
	}
	return nil
}

type Post struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Author  Author    `json:"author"`
	Created time.Time `json:"created"`
}

// Validate checks that all the required fields are present.
func (p *Post) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("title: %w", ErrFieldMissing)
	}
	if p.Content == "" {
		return fmt.Errorf("content: %w", ErrFieldMissing)
	}
	return p.Author.validate()
}

// PostUpdate names the fields to replace, nil ones are left untouched.
type PostUpdate struct {
	Title   *string
	Content *string
	Author  *Author
}

func (u PostUpdate) IsEmpty() bool {
	return u.Title == nil && u.Content == nil && u.Author == nil
}

func (u PostUpdate) Validate() error {
	if u.Title != nil && *u.Title == "" {
		return fmt.Errorf("title: %w", ErrFieldMissing)
	}
	if u.Content != nil && *u.Content == "" {
		return fmt.Errorf("content: %w", ErrFieldMissing)
	}
	if u.Author != nil {
		return u.Author.validate()
	}
	return nil
}

// Apply sets the named fields on p. ID and Created are never touched.
func (u PostUpdate) Apply(p *Post) {
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Content != nil {
		p.Content = *u.Content
	}
	if u.Author != nil {
		p.Author = *u.Author
	}
}

// PostView is the wire representation of a post.
type PostView struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Author  string    `json:"author"`
	Created time.Time `json:"created"`
}

func (p *Post) View() PostView {
	return PostView{
		ID:      p.ID,
		Title:   p.Title,
		Content: p.Content,
		Author:  p.Author.Name(),
		Created: p.Created,
	}
}

// NowCreated returns the creation timestamp for a new post, truncated to
// milliseconds (the coarsest precision among the stores).
func NowCreated() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
