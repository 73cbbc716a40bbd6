package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grouping-backfill/internal/domain"
	"grouping-backfill/internal/domain/model"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memStore is a small in-memory world backing the repository ports: projects,
// their groups, and which groups have event data in which store.
type memStore struct {
	mu      sync.Mutex
	projects map[int64]*model.Project
	groups   map[int64][]int64 // project id -> ascending group ids without records
	noIndex  map[int64]bool    // group ids missing from the event index
	noBlob   map[int64]bool    // group ids missing from the payload store

	applied     map[int64][]model.ScoreOutcome // project id -> written outcomes
	deleted     []int64                        // projects whose records were wiped
	ingestionOn []int64
	applyErrFor map[int64]error // group id -> forced ApplyScore error
	selectErr   error
}

func newMemStore() *memStore {
	return &memStore{
		projects:    make(map[int64]*model.Project),
		groups:      make(map[int64][]int64),
		noIndex:     make(map[int64]bool),
		noBlob:      make(map[int64]bool),
		applied:     make(map[int64][]model.ScoreOutcome),
		applyErrFor: make(map[int64]error),
	}
}

func (m *memStore) addProject(id int64, groupIDs ...int64) {
	m.projects[id] = &model.Project{ID: id, Slug: fmt.Sprintf("p%d", id), BackfillEnabled: true}
	m.groups[id] = groupIDs
}

// --- ProjectRepository ---

func (m *memStore) FindByID(ctx context.Context, id int64) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) EnableIngestion(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.ErrProjectNotFound
	}
	p.IngestionEnabled = true
	m.ingestionOn = append(m.ingestionOn, id)
	return nil
}

// --- GroupRepository ---

func (m *memStore) SelectUnembedded(ctx context.Context, projectID int64, afterGroupID *int64, limit int) ([]int64, *int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selectErr != nil {
		return nil, nil, m.selectErr
	}
	if limit <= 0 {
		return nil, nil, nil
	}
	var after int64
	if afterGroupID != nil {
		after = *afterGroupID
	}
	var ids []int64
	for _, id := range m.groups[projectID] {
		if id > after {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}
	last := ids[len(ids)-1]
	return ids, &last, nil
}

func (m *memStore) ApplyScore(ctx context.Context, projectID int64, outcome model.ScoreOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.applyErrFor[outcome.GroupID]; err != nil {
		return err
	}
	m.applied[projectID] = append(m.applied[projectID], outcome)
	return nil
}

func (m *memStore) DeleteGroupingRecords(ctx context.Context, projectID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, projectID)
	return nil
}

// --- EventIndexRepository ---

func (m *memStore) QueryLatestEvents(ctx context.Context, projectID int64, groupIDs []int64) ([]model.EventRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []model.EventRef
	for _, id := range groupIDs {
		if m.noIndex[id] {
			continue
		}
		refs = append(refs, model.EventRef{GroupID: id, EventID: fmt.Sprintf("evt-%d", id)})
	}
	return refs, nil
}

// --- EventPayloadStore ---

func (m *memStore) FetchPayloads(ctx context.Context, projectID int64, refs []model.EventRef) (map[int64]model.EventSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]model.EventSnapshot)
	for _, ref := range refs {
		if m.noBlob[ref.GroupID] {
			continue
		}
		out[ref.GroupID] = model.EventSnapshot{
			GroupID:    ref.GroupID,
			EventID:    ref.EventID,
			Hash:       fmt.Sprintf("hash-%d", ref.GroupID),
			Message:    "boom",
			Stacktrace: "at main.run(main.go:1)",
		}
	}
	return out, nil
}

func (m *memStore) appliedIDs(projectID int64) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, o := range m.applied[projectID] {
		ids = append(ids, o.GroupID)
	}
	return ids
}

// mockScorer scores every group successfully unless told to fail.
type mockScorer struct {
	mu       sync.Mutex
	failWith string // non-empty means Success=false with this reason
	calls    [][]int64
}

func (s *mockScorer) Score(ctx context.Context, projectID int64, groupIDs []int64, snapshots map[int64]model.EventSnapshot) (*model.BatchScoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int64, len(groupIDs))
	copy(cp, groupIDs)
	s.calls = append(s.calls, cp)

	if s.failWith != "" {
		return &model.BatchScoreResult{Success: false, Reason: s.failWith}, nil
	}
	res := &model.BatchScoreResult{Success: true, Outcomes: make(map[int64]model.ScoreOutcome)}
	for _, id := range groupIDs {
		res.Outcomes[id] = model.ScoreOutcome{GroupID: id, GroupingRecordHash: snapshots[id].Hash}
	}
	return res, nil
}

// mockGate is a deterministic killswitch.
type mockGate struct {
	global  bool
	project map[int64]bool
}

func (g *mockGate) GloballyKilled(ctx context.Context) bool { return g.global }
func (g *mockGate) ProjectKilled(ctx context.Context, projectID int64) bool {
	return g.project[projectID]
}

// mockRegistry resolves named cohorts from a plain map.
type mockRegistry struct {
	cohorts map[string][]int64
}

func (r *mockRegistry) ProjectsFor(name string) ([]int64, bool) {
	ids, ok := r.cohorts[name]
	return ids, ok
}

// mockScheduler records enqueued cursors; tests drive continuation chains by
// popping them back off.
type mockScheduler struct {
	mu      sync.Mutex
	queue   []model.BackfillCursor
	failErr error
}

func (s *mockScheduler) Enqueue(ctx context.Context, cursor model.BackfillCursor, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.queue = append(s.queue, cursor)
	return nil
}

func (s *mockScheduler) pop() (model.BackfillCursor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return model.BackfillCursor{}, false
	}
	c := s.queue[0]
	s.queue = s.queue[1:]
	return c, true
}

func (s *mockScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
