//go:build integration_test || all_tests

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/2beens/blogposts/internal/blog"
)

func (s *IntegrationTestSuite) doRequest(ctx context.Context, method, path string, body any) *http.Response {
	var reqBody io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reqBody = bytes.NewBufferString(b)
		default:
			bodyJson, err := json.Marshal(b)
			s.Require().NoError(err)
			reqBody = bytes.NewReader(bodyJson)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, serverEndpoint+path, reqBody)
	s.Require().NoError(err)
	req.Header.Set("User-Agent", "test-agent")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *IntegrationTestSuite) listPosts(ctx context.Context) []blog.PostView {
	resp := s.doRequest(ctx, "GET", "/posts", nil)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var postsResp blog.PostsResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&postsResp))
	return postsResp.BlogPosts
}

// getPost returns nil when the post is not found.
func (s *IntegrationTestSuite) getPost(ctx context.Context, id string) *blog.PostView {
	resp := s.doRequest(ctx, "GET", "/posts/"+id, nil)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var view blog.PostView
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&view))
	return &view
}

func (s *IntegrationTestSuite) newPost(ctx context.Context, body any) (*http.Response, *blog.PostView) {
	resp := s.doRequest(ctx, "POST", "/posts", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return resp, nil
	}

	var view blog.PostView
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&view))
	return resp, &view
}

func (s *IntegrationTestSuite) statusOf(ctx context.Context, method, path string, body any) int {
	resp := s.doRequest(ctx, method, path, body)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func (s *IntegrationTestSuite) TestListPosts() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	posts := s.listPosts(ctx)
	s.Len(posts, seededPostsN)
	s.Equal(s.postsCount(ctx), len(posts))

	seededIDs := make(map[string]bool, len(s.seeded))
	for _, p := range s.seeded {
		seededIDs[p.ID] = true
	}
	for _, p := range posts {
		s.True(seededIDs[p.ID], "unexpected post %s", p.ID)
		s.NotEmpty(p.Title)
		s.NotEmpty(p.Content)
		s.NotEmpty(p.Author)
		s.False(p.Created.IsZero())
	}
}

func (s *IntegrationTestSuite) TestGetPost() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seeded := s.seeded[3]
	view := s.getPost(ctx, seeded.ID)
	s.Require().NotNil(view)
	s.Equal(seeded.ID, view.ID)
	s.Equal(seeded.Title, view.Title)
	s.Equal(seeded.Content, view.Content)
	s.Equal(seeded.Author.Name(), view.Author)
	s.True(seeded.Created.Equal(view.Created), "%s != %s", seeded.Created, view.Created)

	s.Nil(s.getPost(ctx, primitive.NewObjectID().Hex()))
	s.Nil(s.getPost(ctx, "not-an-object-id"))
}

func (s *IntegrationTestSuite) TestNewPost() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, created := s.newPost(ctx, map[string]any{
		"title":   "The Analytical Engine",
		"content": "It weaves algebraic patterns.",
		"author": map[string]string{
			"firstName": "Ada",
			"lastName":  "Lovelace",
		},
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Require().NotNil(created)
	s.Equal("application/json", resp.Header.Get("Content-Type"))
	s.NotEmpty(created.ID)
	s.Equal("The Analytical Engine", created.Title)
	s.Equal("It weaves algebraic patterns.", created.Content)
	s.Equal("Ada Lovelace", created.Author)
	s.WithinDuration(time.Now(), created.Created, time.Minute)

	s.Equal(seededPostsN+1, s.postsCount(ctx))

	fetched := s.getPost(ctx, created.ID)
	s.Require().NotNil(fetched)
	s.Equal(*created, *fetched)
}

func (s *IntegrationTestSuite) TestNewPost_invalid() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	author := map[string]string{"firstName": "Ada", "lastName": "Lovelace"}
	cases := map[string]any{
		"missing title":          map[string]any{"content": "c", "author": author},
		"missing content":        map[string]any{"title": "t", "author": author},
		"missing author":         map[string]any{"title": "t", "content": "c"},
		"missing author first":   map[string]any{"title": "t", "content": "c", "author": map[string]string{"lastName": "L"}},
		"missing author last":    map[string]any{"title": "t", "content": "c", "author": map[string]string{"firstName": "F"}},
		"empty title":            map[string]any{"title": "", "content": "c", "author": author},
		"empty object":           map[string]any{},
		"not json":               "title=t&content=c",
		"wrong field type":       `{"title": 12, "content": "c", "author": {"firstName": "F", "lastName": "L"}}`,
		"author is not a object": map[string]any{"title": "t", "content": "c", "author": "Ada Lovelace"},
	}

	for name, body := range cases {
		s.Run(name, func() {
			resp, created := s.newPost(ctx, body)
			s.Equal(http.StatusBadRequest, resp.StatusCode)
			s.Nil(created)
			s.Equal(seededPostsN, s.postsCount(ctx))
		})
	}
}

func (s *IntegrationTestSuite) TestUpdatePost() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seeded := s.seeded[0]
	status := s.statusOf(ctx, "PUT", "/posts/"+seeded.ID, map[string]any{
		"id":    seeded.ID,
		"title": "Updated title",
		"author": map[string]string{
			"firstName": "Grace",
			"lastName":  "Hopper",
		},
	})
	s.Require().Equal(http.StatusNoContent, status)

	updated := s.getPost(ctx, seeded.ID)
	s.Require().NotNil(updated)
	s.Equal(seeded.ID, updated.ID)
	s.Equal("Updated title", updated.Title)
	s.Equal(seeded.Content, updated.Content)
	s.Equal("Grace Hopper", updated.Author)
	s.True(seeded.Created.Equal(updated.Created), "created must not change")

	s.Equal(seededPostsN, s.postsCount(ctx))

	// the other posts are untouched
	other := s.getPost(ctx, s.seeded[1].ID)
	s.Require().NotNil(other)
	s.Equal(s.seeded[1].Title, other.Title)
}

func (s *IntegrationTestSuite) TestUpdatePost_idMismatch() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seeded := s.seeded[0]
	status := s.statusOf(ctx, "PUT", "/posts/"+seeded.ID, map[string]any{
		"id":    s.seeded[1].ID,
		"title": "Should not be stored",
	})
	s.Equal(http.StatusBadRequest, status)

	status = s.statusOf(ctx, "PUT", "/posts/"+seeded.ID, map[string]any{
		"title": "Should not be stored",
	})
	s.Equal(http.StatusBadRequest, status)

	for _, id := range []string{seeded.ID, s.seeded[1].ID} {
		post := s.getPost(ctx, id)
		s.Require().NotNil(post)
		s.NotEqual("Should not be stored", post.Title)
	}
}

func (s *IntegrationTestSuite) TestUpdatePost_absent() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	absentID := primitive.NewObjectID().Hex()
	status := s.statusOf(ctx, "PUT", "/posts/"+absentID, map[string]any{
		"id":    absentID,
		"title": "Ghost",
	})
	s.Equal(http.StatusNoContent, status)
	s.Nil(s.getPost(ctx, absentID))
	s.Equal(seededPostsN, s.postsCount(ctx))
}

func (s *IntegrationTestSuite) TestUpdatePost_invalid() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seeded := s.seeded[0]
	status := s.statusOf(ctx, "PUT", "/posts/"+seeded.ID, map[string]any{
		"id":    seeded.ID,
		"title": "",
	})
	s.Equal(http.StatusBadRequest, status)

	post := s.getPost(ctx, seeded.ID)
	s.Require().NotNil(post)
	s.Equal(seeded.Title, post.Title)
}

func (s *IntegrationTestSuite) TestDeletePost() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seeded := s.seeded[5]
	s.Require().Equal(http.StatusNoContent, s.statusOf(ctx, "DELETE", "/posts/"+seeded.ID, nil))
	s.Nil(s.getPost(ctx, seeded.ID))
	s.Equal(seededPostsN-1, s.postsCount(ctx))

	// deleting again is fine
	s.Equal(http.StatusNoContent, s.statusOf(ctx, "DELETE", "/posts/"+seeded.ID, nil))
	s.Equal(seededPostsN-1, s.postsCount(ctx))
}

func (s *IntegrationTestSuite) TestDeletePost_absent() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, id := range []string{primitive.NewObjectID().Hex(), "not-an-object-id"} {
		s.Equal(http.StatusNoContent, s.statusOf(ctx, "DELETE", "/posts/"+id, nil))
	}
	s.Equal(seededPostsN, s.postsCount(ctx))
}

func (s *IntegrationTestSuite) TestPostLifecycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.Require().Len(s.listPosts(ctx), seededPostsN)

	resp, created := s.newPost(ctx, map[string]any{
		"title":   "A",
		"content": "B",
		"author":  map[string]string{"firstName": "C", "lastName": "D"},
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Require().NotNil(created)
	s.Equal("A", created.Title)
	id := created.ID

	fetched := s.getPost(ctx, id)
	s.Require().NotNil(fetched)
	s.Equal("A", fetched.Title)
	s.Equal("B", fetched.Content)
	s.Equal("C D", fetched.Author)

	status := s.statusOf(ctx, "PUT", "/posts/"+id, map[string]any{
		"id":      id,
		"title":   "Z",
		"content": "B",
		"author":  map[string]string{"firstName": "C", "lastName": "D"},
	})
	s.Require().Equal(http.StatusNoContent, status)

	fetched = s.getPost(ctx, id)
	s.Require().NotNil(fetched)
	s.Equal("Z", fetched.Title)

	s.Require().Equal(http.StatusNoContent, s.statusOf(ctx, "DELETE", "/posts/"+id, nil))
	s.Nil(s.getPost(ctx, id))
	s.Len(s.listPosts(ctx), seededPostsN)
}

func (s *IntegrationTestSuite) TestHealthAndMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp := s.doRequest(ctx, "GET", "/health", nil)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var health map[string]string
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&health))
	s.Equal("ok", health["store"])
	s.Equal("disabled", health["redis"])

	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/metrics", metricsEndpoint), nil)
	s.Require().NoError(err)
	metricsResp, err := s.httpClient.Do(req)
	s.Require().NoError(err)
	defer metricsResp.Body.Close()
	s.Require().Equal(http.StatusOK, metricsResp.StatusCode)

	body, err := io.ReadAll(metricsResp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), "blogposts_main_request_duration_seconds")
	s.Contains(string(body), "blogposts_main_life_signal 1")
}
