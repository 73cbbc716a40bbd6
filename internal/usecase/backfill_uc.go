package usecase

import (
	"context"
	"errors"
	"fmt"

	"grouping-backfill/internal/domain"
	"grouping-backfill/internal/domain/model"
	"grouping-backfill/internal/domain/ports/adapter"
	"grouping-backfill/internal/domain/ports/repository"
	"grouping-backfill/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ BackfillUseCase = (*backfillUC)(nil)

// BackfillUseCase runs one checkpointed step of the grouping-record backfill.
// Each call is a pure function of the cursor: it selects the next page of
// unembedded groups, resolves their event snapshots from the index and the
// payload store, scores them against the similarity service, writes the
// outcomes back, and enqueues the derived next cursor. Resumability lives
// entirely in the cursor; there is no job table.
type BackfillUseCase interface {
	ProcessBatch(ctx context.Context, cursor model.BackfillCursor) (model.Transition, error)
}

type backfillUC struct {
	projects  repository.ProjectRepository
	groups    repository.GroupRepository
	events    repository.EventIndexRepository
	payloads  repository.EventPayloadStore
	scorer    adapter.SimilarityScorer
	gate      adapter.FeatureGate
	cohorts   adapter.CohortRegistry
	sched     adapter.TaskScheduler
	batchSize int
	log       *zerolog.Logger
}

func NewBackfillUseCase(
	projects repository.ProjectRepository,
	groups repository.GroupRepository,
	events repository.EventIndexRepository,
	payloads repository.EventPayloadStore,
	scorer adapter.SimilarityScorer,
	gate adapter.FeatureGate,
	cohorts adapter.CohortRegistry,
	sched adapter.TaskScheduler,
	batchSize int,
	logger *zerolog.Logger,
) *backfillUC {
	ucLog := logger.With().Str("component", "BackfillUseCase").Logger()
	return &backfillUC{
		projects:  projects,
		groups:    groups,
		events:    events,
		payloads:  payloads,
		scorer:    scorer,
		gate:      gate,
		cohorts:   cohorts,
		sched:     sched,
		batchSize: batchSize,
		log:       &ucLog,
	}
}

func (u *backfillUC) ProcessBatch(ctx context.Context, cur model.BackfillCursor) (model.Transition, error) {
	defer logging.TraceDuration(u.log, "BackfillUseCase.ProcessBatch")()
	log := u.log.With().Int64("project_id", cur.ProjectID).Logger()

	if cur.ProjectID <= 0 {
		return model.TransitionHalted, fmt.Errorf("cursor project id %d: %w", cur.ProjectID, domain.ErrInvalidArgument)
	}

	// Killswitches are a hard stop, checked once per invocation. No
	// continuation is scheduled; the cursor stays where it was.
	if u.gate.GloballyKilled(ctx) || u.gate.ProjectKilled(ctx, cur.ProjectID) {
		log.Info().Msg("killswitch enabled, skipping backfill step")
		return model.TransitionHalted, nil
	}

	log.Info().
		Interface("last_group_id", cur.LastGroupID).
		Interface("project_index", cur.ProjectIndex).
		Bool("only_delete", cur.OnlyDelete).
		Msg("processing backfill batch")

	project, err := u.projects.FindByID(ctx, cur.ProjectID)
	if err != nil {
		if errors.Is(err, domain.ErrProjectNotFound) || errors.Is(err, domain.ErrNotFound) {
			// Projects get deleted mid-walk. Treat as an exhausted
			// batch so the cohort keeps moving.
			log.Info().Msg("project does not exist, advancing walk")
			return u.continueFrom(ctx, cur, nil)
		}
		return model.TransitionHalted, fmt.Errorf("find project %d: %w", cur.ProjectID, err)
	}

	if !project.BackfillEnabled {
		// Eligibility should have been checked by whoever enqueued the
		// chain; ending here without continuation is deliberate.
		log.Info().Msg("backfill not enabled for project")
		return model.TransitionHalted, nil
	}

	if cur.OnlyDelete {
		if err := u.groups.DeleteGroupingRecords(ctx, cur.ProjectID); err != nil {
			return model.TransitionHalted, fmt.Errorf("delete grouping records: %w", err)
		}
		log.Info().Msg("deleted all grouping records for project")
		return u.continueFrom(ctx, cur, nil)
	}

	if cur.EnableIngestion && cur.LastGroupID == nil && !project.IngestionEnabled {
		if err := u.projects.EnableIngestion(ctx, cur.ProjectID); err != nil {
			log.Warn().Err(err).Msg("failed to enable inline ingestion")
		} else {
			log.Info().Msg("enabled inline grouping-record ingestion")
		}
	}

	groupIDs, batchEnd, err := u.groups.SelectUnembedded(ctx, cur.ProjectID, cur.LastGroupID, u.batchSize)
	if err != nil {
		return model.TransitionHalted, fmt.Errorf("select unembedded groups: %w", err)
	}
	if len(groupIDs) == 0 {
		return u.continueFrom(ctx, cur, batchEnd)
	}

	eligible, snapshots, err := u.fetchSnapshots(ctx, &log, cur.ProjectID, groupIDs)
	if err != nil {
		return model.TransitionHalted, err
	}
	if len(eligible) == 0 {
		// Every group in the page lacked event data in one of the two
		// stores. Not an error: advance the cursor and move on.
		log.Info().Int("selected", len(groupIDs)).Msg("no groups with event data in batch, skipping")
		return u.continueFrom(ctx, cur, batchEnd)
	}

	res, err := u.scorer.Score(ctx, cur.ProjectID, eligible, snapshots)
	if err != nil {
		return model.TransitionHalted, fmt.Errorf("score batch: %w", err)
	}
	if !res.Success {
		// No partial credit and no continuation: the cursor has not
		// advanced past this batch, so a manual re-trigger resumes
		// exactly here.
		log.Error().
			Str("reason", res.Reason).
			Int("batch_size", len(eligible)).
			Msg("similarity scoring failed, halting without continuation")
		return model.TransitionHalted, fmt.Errorf("%w: %s", domain.ErrScoringFailed, res.Reason)
	}

	applied := 0
	for _, id := range eligible {
		out, ok := res.Outcomes[id]
		if !ok {
			continue
		}
		if err := u.groups.ApplyScore(ctx, cur.ProjectID, out); err != nil {
			// Best effort: one group's write failure does not abort
			// the batch.
			log.Warn().Err(err).Int64("group_id", id).Msg("failed to write similarity outcome")
			continue
		}
		applied++
	}

	log.Info().
		Int("selected", len(groupIDs)).
		Int("scored", len(eligible)).
		Int("applied", applied).
		Msg("backfill batch complete")

	return u.continueFrom(ctx, cur, batchEnd)
}

// fetchSnapshots joins the columnar event index with the payload store and
// returns the group ids (in selection order) whose snapshot resolved in both,
// alongside the snapshots keyed by group id. Missing rows in either store
// drop the group from the batch.
func (u *backfillUC) fetchSnapshots(ctx context.Context, log *zerolog.Logger, projectID int64, groupIDs []int64) ([]int64, map[int64]model.EventSnapshot, error) {
	refs, err := u.events.QueryLatestEvents(ctx, projectID, groupIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("query event index: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil, nil
	}
	if dropped := len(groupIDs) - len(refs); dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("groups without event index rows")
	}

	snapshots, err := u.payloads.FetchPayloads(ctx, projectID, refs)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch event payloads: %w", err)
	}

	eligible := make([]int64, 0, len(snapshots))
	for _, id := range groupIDs {
		if _, ok := snapshots[id]; ok {
			eligible = append(eligible, id)
		}
	}
	return eligible, snapshots, nil
}

// continueFrom derives the next cursor from the one just processed and
// schedules it. batchEnd is the highest group id the batch scanned; nil means
// the project is exhausted and the walk moves to the next project, or ends.
func (u *backfillUC) continueFrom(ctx context.Context, cur model.BackfillCursor, batchEnd *int64) (model.Transition, error) {
	if batchEnd != nil {
		next := model.BackfillCursor{
			ProjectID:       cur.ProjectID,
			LastGroupID:     batchEnd,
			Cohort:          cur.Cohort,
			ProjectIndex:    cur.ProjectIndex,
			OnlyDelete:      cur.OnlyDelete,
			EnableIngestion: cur.EnableIngestion,
		}
		if err := u.sched.Enqueue(ctx, next, 0); err != nil {
			return model.TransitionHalted, fmt.Errorf("enqueue continuation: %w", err)
		}
		return model.TransitionBatchInProgress, nil
	}

	if cur.Cohort == nil {
		// Single-project mode; ProjectIndex is never consulted here.
		u.log.Info().Int64("project_id", cur.ProjectID).Msg("backfill finished, no cohort")
		return model.TransitionTerminated, nil
	}

	projects := cur.Cohort.ProjectIDs
	if cur.Cohort.Name != "" {
		var ok bool
		projects, ok = u.cohorts.ProjectsFor(cur.Cohort.Name)
		if !ok {
			u.log.Warn().Str("cohort", cur.Cohort.Name).Msg("unknown cohort, terminating walk")
			return model.TransitionCohortExhausted, nil
		}
	}

	idx := 0
	if cur.ProjectIndex != nil {
		idx = *cur.ProjectIndex
	}
	next := idx + 1
	if next >= len(projects) {
		u.log.Info().
			Interface("cohort", cur.Cohort).
			Int("last_processed_project_index", idx).
			Msg("reached the end of the cohort project list")
		return model.TransitionCohortExhausted, nil
	}

	nextCur := model.BackfillCursor{
		ProjectID:       projects[next],
		Cohort:          cur.Cohort,
		ProjectIndex:    &next,
		OnlyDelete:      cur.OnlyDelete,
		EnableIngestion: cur.EnableIngestion,
	}
	if err := u.sched.Enqueue(ctx, nextCur, 0); err != nil {
		return model.TransitionHalted, fmt.Errorf("enqueue continuation: %w", err)
	}
	return model.TransitionCohortAdvanced, nil
}
