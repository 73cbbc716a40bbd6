package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"grouping-backfill/internal/domain/model"
	"grouping-backfill/internal/domain/ports/adapter"
	"grouping-backfill/internal/infra/redis"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Pinger lets the health endpoint probe a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KillswitchController flips the runtime kill flags.
type KillswitchController interface {
	SetGlobal(ctx context.Context, killed bool) error
	SetProject(ctx context.Context, projectID int64, killed bool) error
}

// TriggerLimiter throttles the mutating endpoints.
type TriggerLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

const (
	triggerRateLimit  = 30
	triggerRateWindow = time.Minute
)

// Server is the ops/admin surface: health and metrics unauthenticated,
// backfill triggers and killswitch flips behind operator tokens. Triggering
// here is also the manual remediation path after a scoring failure halts a
// chain: re-enqueue the same project and the cursor resumes where it stopped.
type Server struct {
	auth    *AuthManager
	sched   adapter.TaskScheduler
	cohorts adapter.CohortRegistry
	kill    KillswitchController
	limiter TriggerLimiter
	db      Pinger
	cache   Pinger
	log     *zerolog.Logger
	server  *http.Server
}

func NewServer(
	port int,
	auth *AuthManager,
	sched adapter.TaskScheduler,
	cohorts adapter.CohortRegistry,
	kill KillswitchController,
	limiter TriggerLimiter,
	db Pinger,
	cache Pinger,
	logger *zerolog.Logger,
) *Server {
	srvLog := logger.With().Str("component", "OpsServer").Logger()
	s := &Server{
		auth:    auth,
		sched:   sched,
		cohorts: cohorts,
		kill:    kill,
		limiter: limiter,
		db:      db,
		cache:   cache,
		log:     &srvLog,
	}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/api/v1/auth", s.handleAuth)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware, s.rateLimit)
		r.Post("/api/v1/backfills", s.handleTrigger)
		r.Post("/api/v1/killswitch", s.handleKillswitch)
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("ops server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// rateLimit throttles per endpoint. Limiter trouble fails open: an
// unreachable redis must not block manual remediation.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := s.limiter.Allow(r.Context(), redis.OpsRouteKey(r.URL.Path), triggerRateLimit, triggerRateWindow)
		if err != nil {
			s.log.Warn().Err(err).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		http.Error(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	if err := s.cache.Ping(ctx); err != nil {
		http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var body struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	token, err := s.auth.Exchange(body.APIKey)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type triggerRequest struct {
	ProjectID       *int64  `json:"project_id"`
	CohortName      string  `json:"cohort_name"`
	ProjectIDs      []int64 `json:"project_ids"`
	OnlyDelete      bool    `json:"only_delete"`
	EnableIngestion bool    `json:"enable_ingestion"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var body triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	cursor, err := s.buildCursor(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.sched.Enqueue(r.Context(), *cursor, 0); err != nil {
		s.log.Error().Err(err).Msg("failed to enqueue backfill")
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}
	s.log.Info().
		Int64("project_id", cursor.ProjectID).
		Bool("only_delete", cursor.OnlyDelete).
		Msg("backfill triggered")
	writeJSON(w, http.StatusAccepted, map[string]any{"project_id": cursor.ProjectID})
}

func (s *Server) buildCursor(body triggerRequest) (*model.BackfillCursor, error) {
	firstIndex := 0
	switch {
	case body.CohortName != "":
		projects, ok := s.cohorts.ProjectsFor(body.CohortName)
		if !ok {
			return nil, fmt.Errorf("unknown cohort %q", body.CohortName)
		}
		return &model.BackfillCursor{
			ProjectID:       projects[0],
			Cohort:          &model.Cohort{Name: body.CohortName},
			ProjectIndex:    &firstIndex,
			OnlyDelete:      body.OnlyDelete,
			EnableIngestion: body.EnableIngestion,
		}, nil
	case len(body.ProjectIDs) > 0:
		return &model.BackfillCursor{
			ProjectID:       body.ProjectIDs[0],
			Cohort:          &model.Cohort{ProjectIDs: body.ProjectIDs},
			ProjectIndex:    &firstIndex,
			OnlyDelete:      body.OnlyDelete,
			EnableIngestion: body.EnableIngestion,
		}, nil
	case body.ProjectID != nil:
		return &model.BackfillCursor{
			ProjectID:       *body.ProjectID,
			OnlyDelete:      body.OnlyDelete,
			EnableIngestion: body.EnableIngestion,
		}, nil
	default:
		return nil, fmt.Errorf("one of project_id, cohort_name, project_ids is required")
	}
}

func (s *Server) handleKillswitch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID *int64 `json:"project_id"`
		Killed    bool   `json:"killed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var err error
	if body.ProjectID != nil {
		err = s.kill.SetProject(r.Context(), *body.ProjectID, body.Killed)
	} else {
		err = s.kill.SetGlobal(r.Context(), body.Killed)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("failed to flip killswitch")
		http.Error(w, "killswitch update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"killed": body.Killed})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
