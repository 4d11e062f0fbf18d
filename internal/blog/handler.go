package blog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/2beens/blogposts/internal/telemetry/metrics"
	"github.com/2beens/blogposts/internal/telemetry/tracing"
	"github.com/2beens/blogposts/pkg"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=blog_test

const maxRequestBodyBytes = 1 << 20

type postsRepo interface {
	Insert(ctx context.Context, post *Post) error
	FindAll(ctx context.Context) ([]Post, error)
	FindByID(ctx context.Context, id string) (*Post, error)
	UpdateByID(ctx context.Context, id string, update PostUpdate) error
	DeleteByID(ctx context.Context, id string) error
}

type PostsResponse struct {
	BlogPosts []PostView `json:"blogposts"`
}

type newPostRequest struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Author  *Author `json:"author"`
}

func (req newPostRequest) toPost() (*Post, error) {
	if req.Author == nil {
		return nil, fmt.Errorf("author: %w", ErrFieldMissing)
	}
	post := &Post{
		Title:   req.Title,
		Content: req.Content,
		Author:  *req.Author,
	}
	if err := post.Validate(); err != nil {
		return nil, err
	}
	return post, nil
}

type updatePostRequest struct {
	ID      string  `json:"id"`
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Author  *Author `json:"author"`
}

func (req updatePostRequest) toUpdate() (PostUpdate, error) {
	update := PostUpdate{
		Title:   req.Title,
		Content: req.Content,
		Author:  req.Author,
	}
	return update, update.Validate()
}

type Handler struct {
	repo    postsRepo
	metrics *metrics.Manager
}

func NewHandler(repo postsRepo, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		repo:    repo,
		metrics: metricsManager,
	}
}

// SetupRoutes registers the posts routes. Middlewares passed in are applied
// only to the mutating (POST, PUT, DELETE) routes.
func (handler *Handler) SetupRoutes(router *mux.Router, mutationMiddlewares ...mux.MiddlewareFunc) {
	router.HandleFunc("/posts", handler.handleList).Methods("GET", "OPTIONS").Name("list-posts")
	router.HandleFunc("/posts/{id}", handler.handleGet).Methods("GET", "OPTIONS").Name("get-post")

	router.Handle("/posts", withMiddlewares(handler.handleCreate, mutationMiddlewares)).Methods("POST").Name("new-post")
	router.Handle("/posts/{id}", withMiddlewares(handler.handleUpdate, mutationMiddlewares)).Methods("PUT").Name("update-post")
	router.Handle("/posts/{id}", withMiddlewares(handler.handleDelete, mutationMiddlewares)).Methods("DELETE").Name("delete-post")
}

// withMiddlewares wraps h so that middlewares[0] runs first.
func withMiddlewares(h http.HandlerFunc, middlewares []mux.MiddlewareFunc) http.Handler {
	var wrapped http.Handler = h
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i].Middleware(wrapped)
	}
	return wrapped
}

func (handler *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.posts.list")
	defer span.End()

	posts, err := handler.repo.FindAll(ctx)
	if err != nil {
		log.Errorf("list blog posts: %s", err)
		span.SetStatus(codes.Error, err.Error())
		http.Error(w, "failed to get blog posts", http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.Int("posts.count", len(posts)))

	resp := PostsResponse{
		BlogPosts: make([]PostView, 0, len(posts)),
	}
	for i := range posts {
		resp.BlogPosts = append(resp.BlogPosts, posts[i].View())
	}

	pkg.WriteJSONResponse(w, resp, http.StatusOK)
}

func (handler *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.posts.get")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("post.id", id))

	post, err := handler.repo.FindByID(ctx, id)
	if errors.Is(err, ErrPostNotFound) {
		http.Error(w, "blog post not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Errorf("get blog post %s: %s", id, err)
		span.SetStatus(codes.Error, err.Error())
		http.Error(w, "failed to get blog post", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponse(w, post.View(), http.StatusOK)
}

func (handler *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.posts.new")
	defer span.End()

	var newPostReq newPostRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&newPostReq); err != nil {
		log.Debugf("new blog post, unmarshal json params: %s", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	post, err := newPostReq.toPost()
	if err != nil {
		log.Tracef("new blog post rejected: %s", err)
		http.Error(w, fmt.Sprintf("error, %s", err), http.StatusBadRequest)
		return
	}

	if err := handler.repo.Insert(ctx, post); err != nil {
		if errors.Is(err, ErrFieldMissing) {
			http.Error(w, fmt.Sprintf("error, %s", err), http.StatusBadRequest)
			return
		}
		log.Errorf("add new blog post failed: %s", err)
		span.SetStatus(codes.Error, err.Error())
		http.Error(w, "add new blog post failed", http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.String("post.id", post.ID))
	handler.metrics.CounterPostsCreated.Inc()
	log.Tracef("new blog post %s: [%s] added", post.ID, post.Title)

	pkg.WriteJSONResponse(w, post.View(), http.StatusCreated)
}

func (handler *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.posts.update")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("post.id", id))

	var updatePostReq updatePostRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&updatePostReq); err != nil {
		log.Debugf("update blog post, unmarshal json params: %s", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if updatePostReq.ID != id {
		http.Error(
			w,
			fmt.Sprintf("error, request path id (%s) and request body id (%s) must match", id, updatePostReq.ID),
			http.StatusBadRequest,
		)
		return
	}

	update, err := updatePostReq.toUpdate()
	if err != nil {
		http.Error(w, fmt.Sprintf("error, %s", err), http.StatusBadRequest)
		return
	}

	if update.IsEmpty() {
		log.Tracef("blog post %s: nothing to update", id)
		pkg.WriteNoContent(w)
		return
	}

	err = handler.repo.UpdateByID(ctx, id, update)
	switch {
	case err == nil:
		log.Tracef("blog post %s updated", id)
	case errors.Is(err, ErrPostNotFound):
		log.Tracef("blog post %s not updated, not found", id)
	case errors.Is(err, ErrFieldMissing):
		http.Error(w, fmt.Sprintf("error, %s", err), http.StatusBadRequest)
		return
	default:
		log.Errorf("update blog post %s failed: %s", id, err)
		span.SetStatus(codes.Error, err.Error())
		http.Error(w, "update blog post failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteNoContent(w)
}

func (handler *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.posts.delete")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("post.id", id))

	if err := handler.repo.DeleteByID(ctx, id); err != nil {
		log.Errorf("delete blog post %s: %s", id, err)
		span.SetStatus(codes.Error, err.Error())
		http.Error(w, "error, blog post not deleted, internal server error", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterPostsDeleted.Inc()
	log.Tracef("blog post %s deleted", id)

	pkg.WriteNoContent(w)
}
