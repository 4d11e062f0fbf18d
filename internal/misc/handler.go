package misc

import (
	"context"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"

	"github.com/2beens/blogposts/internal/telemetry/tracing"
	"github.com/2beens/blogposts/pkg"
)

const (
	healthOK          = "ok"
	healthUnavailable = "unavailable"
	healthDisabled    = "disabled"

	pingTimeout = 2 * time.Second
)

type storePinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Redis  string `json:"redis"`
}

type Handler struct {
	versionInfo string
	store       storePinger
	// nil when redis is not configured
	redisClient *redis.Client
}

func NewHandler(versionInfo string, store storePinger, redisClient *redis.Client) *Handler {
	return &Handler{
		versionInfo: versionInfo,
		store:       store,
		redisClient: redisClient,
	}
}

func (handler *Handler) SetupRoutes(mainRouter *mux.Router) {
	mainRouter.HandleFunc("/", handler.handleRoot).Methods("GET", "OPTIONS").Name("root")
	mainRouter.HandleFunc("/version", handler.handleGetVersionInfo).Methods("GET").Name("version")
	mainRouter.HandleFunc("/health", handler.handleHealth).Methods("GET").Name("health")
}

func (handler *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
}

func (handler *Handler) handleGetVersionInfo(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, handler.versionInfo)
}

func (handler *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "miscHandler.health")
	defer span.End()

	resp := HealthResponse{
		Status: healthOK,
		Store:  healthOK,
		Redis:  healthDisabled,
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := handler.store.Ping(pingCtx); err != nil {
		log.Errorf("health: store ping: %s", err)
		resp.Store = healthUnavailable
		resp.Status = healthUnavailable
	}

	if handler.redisClient != nil {
		resp.Redis = healthOK
		if err := handler.redisClient.Ping(pingCtx).Err(); err != nil {
			log.Errorf("health: redis ping: %s", err)
			resp.Redis = healthUnavailable
			resp.Status = healthUnavailable
		}
	}

	statusCode := http.StatusOK
	if resp.Status != healthOK {
		statusCode = http.StatusServiceUnavailable
		span.SetStatus(codes.Error, "unhealthy")
	}

	pkg.WriteJSONResponse(w, resp, statusCode)
}
