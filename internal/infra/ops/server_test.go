package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"grouping-backfill/internal/domain/model"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type mockScheduler struct {
	mu      sync.Mutex
	cursors []model.BackfillCursor
	failErr error
}

func (s *mockScheduler) Enqueue(ctx context.Context, cursor model.BackfillCursor, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.cursors = append(s.cursors, cursor)
	return nil
}

type mockRegistry struct {
	cohorts map[string][]int64
}

func (r *mockRegistry) ProjectsFor(name string) ([]int64, bool) {
	ids, ok := r.cohorts[name]
	return ids, ok
}

type mockKill struct {
	global  *bool
	project map[int64]bool
}

func (k *mockKill) SetGlobal(ctx context.Context, killed bool) error {
	k.global = &killed
	return nil
}

func (k *mockKill) SetProject(ctx context.Context, projectID int64, killed bool) error {
	if k.project == nil {
		k.project = make(map[int64]bool)
	}
	k.project[projectID] = killed
	return nil
}

type mockPinger struct{ err error }

func (p *mockPinger) Ping(ctx context.Context) error { return p.err }

type mockLimiter struct {
	deny bool
	err  error
}

func (l *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return !l.deny, l.err
}

type serverFixture struct {
	sched   *mockScheduler
	kill    *mockKill
	limiter *mockLimiter
	db      *mockPinger
	cache   *mockPinger
	srv     *Server
}

func newServerFixture() *serverFixture {
	f := &serverFixture{
		sched:   &mockScheduler{},
		kill:    &mockKill{},
		limiter: &mockLimiter{},
		db:      &mockPinger{},
		cache:   &mockPinger{},
	}
	auth := NewAuthManager("test-api-key", "test-secret", time.Minute)
	registry := &mockRegistry{cohorts: map[string][]int64{"alpha": {10, 20}}}
	f.srv = NewServer(0, auth, f.sched, registry, f.kill, f.limiter, f.db, f.cache, testLogger())
	return f
}

func (f *serverFixture) token(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"api_key": "test-api-key"}`)
	f.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("auth exchange failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return resp.Token
}

func (f *serverFixture) post(t *testing.T, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		f := newServerFixture()
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("Database Down", func(t *testing.T) {
		f := newServerFixture()
		f.db.err = errors.New("no route to host")
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})
}

func TestAuthExchange(t *testing.T) {
	f := newServerFixture()

	t.Run("Valid Key", func(t *testing.T) {
		if tok := f.token(t); tok == "" {
			t.Fatal("expected a token")
		}
	})

	t.Run("Wrong Key", func(t *testing.T) {
		rec := f.post(t, "/api/v1/auth", "", `{"api_key": "nope"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestTrigger_RequiresToken(t *testing.T) {
	f := newServerFixture()

	rec := f.post(t, "/api/v1/backfills", "", `{"project_id": 1}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec = f.post(t, "/api/v1/backfills", "garbage-token", `{"project_id": 1}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
	if len(f.sched.cursors) != 0 {
		t.Fatal("nothing may be enqueued without auth")
	}
}

func TestTrigger_SingleProject(t *testing.T) {
	f := newServerFixture()
	token := f.token(t)

	rec := f.post(t, "/api/v1/backfills", token, `{"project_id": 42, "enable_ingestion": true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", rec.Code, rec.Body.String())
	}
	if len(f.sched.cursors) != 1 {
		t.Fatalf("expected 1 enqueued cursor, got %d", len(f.sched.cursors))
	}
	cur := f.sched.cursors[0]
	if cur.ProjectID != 42 || cur.Cohort != nil || !cur.EnableIngestion {
		t.Fatalf("unexpected cursor: %+v", cur)
	}
}

func TestTrigger_NamedCohort(t *testing.T) {
	f := newServerFixture()
	token := f.token(t)

	rec := f.post(t, "/api/v1/backfills", token, `{"cohort_name": "alpha"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", rec.Code, rec.Body.String())
	}
	cur := f.sched.cursors[0]
	if cur.ProjectID != 10 {
		t.Fatalf("walk must start at the cohort's first project, got %d", cur.ProjectID)
	}
	if cur.Cohort == nil || cur.Cohort.Name != "alpha" {
		t.Fatalf("cursor must carry the cohort name: %+v", cur.Cohort)
	}
	if cur.ProjectIndex == nil || *cur.ProjectIndex != 0 {
		t.Fatalf("cohort walk must start at index 0: %+v", cur.ProjectIndex)
	}
}

func TestTrigger_ExplicitProjectList(t *testing.T) {
	f := newServerFixture()
	token := f.token(t)

	rec := f.post(t, "/api/v1/backfills", token, `{"project_ids": [5, 6, 7], "only_delete": true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	cur := f.sched.cursors[0]
	if cur.ProjectID != 5 || !cur.OnlyDelete {
		t.Fatalf("unexpected cursor: %+v", cur)
	}
	if cur.Cohort == nil || len(cur.Cohort.ProjectIDs) != 3 {
		t.Fatalf("cursor must carry the inline cohort: %+v", cur.Cohort)
	}
}

func TestTrigger_BadRequests(t *testing.T) {
	f := newServerFixture()
	token := f.token(t)

	for name, body := range map[string]string{
		"no target":      `{}`,
		"unknown cohort": `{"cohort_name": "missing"}`,
		"not json":       `{`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := f.post(t, "/api/v1/backfills", token, body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestTrigger_RateLimited(t *testing.T) {
	f := newServerFixture()
	token := f.token(t)
	f.limiter.deny = true

	rec := f.post(t, "/api/v1/backfills", token, `{"project_id": 1}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if len(f.sched.cursors) != 0 {
		t.Fatal("throttled requests must not enqueue")
	}

	// Limiter errors fail open.
	f.limiter.deny = false
	f.limiter.err = errors.New("redis down")
	rec = f.post(t, "/api/v1/backfills", token, `{"project_id": 1}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("limiter failure must not block the trigger, got %d", rec.Code)
	}
}

func TestKillswitchEndpoint(t *testing.T) {
	f := newServerFixture()
	token := f.token(t)

	rec := f.post(t, "/api/v1/killswitch", token, `{"killed": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.kill.global == nil || !*f.kill.global {
		t.Fatal("expected the global killswitch set")
	}

	rec = f.post(t, "/api/v1/killswitch", token, `{"project_id": 9, "killed": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !f.kill.project[9] {
		t.Fatal("expected project 9 killed")
	}
}
