package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/deals/domain"
	"sales_pipeline_backend/internal/deals/ports"
	"sales_pipeline_backend/internal/deals/repository"
	"sales_pipeline_backend/internal/events"
	"sales_pipeline_backend/internal/scoring"
	"sales_pipeline_backend/platform/apperr"
	"sales_pipeline_backend/platform/db"
	"sales_pipeline_backend/platform/logger"
)

type memRepo struct {
	mu          sync.Mutex
	deals       map[uuid.UUID]domain.Deal
	records     []blueprint.Record
	staleWrites int
	failWrites  map[uuid.UUID]bool
	leadVersion int
}

func newMemRepo() *memRepo {
	return &memRepo{deals: make(map[uuid.UUID]domain.Deal), leadVersion: 1}
}

func (r *memRepo) Get(_ context.Context, tenantID, dealID uuid.UUID) (domain.Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deals[dealID]
	if !ok || d.TenantID != tenantID {
		return domain.Deal{}, apperr.NotFound("deal not found")
	}
	return d, nil
}

func (r *memRepo) List(_ context.Context, params repository.ListParams) ([]domain.Deal, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Deal
	for _, d := range r.deals {
		if d.TenantID == params.TenantID {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

func (r *memRepo) write(d domain.Deal, expectedVersion int) (domain.Deal, error) {
	if r.staleWrites > 0 {
		r.staleWrites--
		return domain.Deal{}, db.ErrStaleVersion
	}
	if r.failWrites[d.ID] {
		return domain.Deal{}, errors.New("connection reset")
	}
	cur, ok := r.deals[d.ID]
	if !ok {
		return domain.Deal{}, apperr.NotFound("deal not found")
	}
	if cur.Version != expectedVersion {
		return domain.Deal{}, db.ErrStaleVersion
	}
	d.Version = cur.Version + 1
	r.deals[d.ID] = d
	return d, nil
}

func (r *memRepo) Update(_ context.Context, d domain.Deal, expectedVersion int) (domain.Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.write(d, expectedVersion)
}

func (r *memRepo) CommitTransition(_ context.Context, d domain.Deal, expectedVersion int, rec blueprint.Record, moved bool) (domain.Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := d
	if moved {
		var err error
		if saved, err = r.write(d, expectedVersion); err != nil {
			return domain.Deal{}, err
		}
	} else {
		if r.staleWrites > 0 {
			r.staleWrites--
			return domain.Deal{}, db.ErrStaleVersion
		}
		if r.deals[d.ID].Version != expectedVersion {
			return domain.Deal{}, db.ErrStaleVersion
		}
	}
	r.records = append(r.records, rec)
	return saved, nil
}

func (r *memRepo) ListTransitions(_ context.Context, _, dealID uuid.UUID) ([]blueprint.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []blueprint.Record
	for _, rec := range r.records {
		if rec.DealID == dealID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memRepo) TouchActivity(_ context.Context, tenantID, dealID uuid.UUID, at time.Time) (domain.Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deals[dealID]
	if !ok || d.TenantID != tenantID {
		return domain.Deal{}, apperr.NotFound("deal not found")
	}
	d.LastActivityAt = &at
	r.deals[dealID] = d
	return d, nil
}

func (r *memRepo) ListActivity(_ context.Context, tenantID uuid.UUID) ([]domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Activity
	for _, d := range r.deals {
		if d.TenantID == tenantID {
			out = append(out, domain.Activity{ID: d.ID, Title: d.Title, Tier: d.Tier, LastActivityAt: d.LastActivityAt})
		}
	}
	return out, nil
}

func (r *memRepo) CreateFromLead(_ context.Context, d domain.Deal, leadVersion int) (domain.Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if leadVersion != r.leadVersion {
		return domain.Deal{}, db.ErrStaleVersion
	}
	for _, existing := range r.deals {
		if existing.LeadID == d.LeadID {
			return domain.Deal{}, apperr.Conflict("lead is already qualified")
		}
	}
	d.Version = 1
	r.deals[d.ID] = d
	r.leadVersion++
	return d, nil
}

type fakeStages struct {
	pipelineID uuid.UUID
	stages     []ports.Stage
}

func (f *fakeStages) GetStage(_ context.Context, _, stageID uuid.UUID) (ports.Stage, error) {
	for _, s := range f.stages {
		if s.ID == stageID {
			return s, nil
		}
	}
	return ports.Stage{}, apperr.NotFound("stage not found")
}

func (f *fakeStages) InitialStage(context.Context, uuid.UUID) (ports.Stage, error) {
	return f.stages[0], nil
}

func (f *fakeStages) byName(name string) ports.Stage {
	for _, s := range f.stages {
		if s.Name == name {
			return s
		}
	}
	panic("unknown stage " + name)
}

func defaultStages() *fakeStages {
	pipelineID := uuid.New()
	mk := func(name string, order, probability int, kind blueprint.StageKind, reqs ...blueprint.Requirement) ports.Stage {
		return ports.Stage{
			PipelineID: pipelineID,
			Stage: blueprint.Stage{
				ID: uuid.New(), Name: name, OrderIndex: order, Probability: probability, Kind: kind, Requirements: reqs,
			},
		}
	}
	return &fakeStages{
		pipelineID: pipelineID,
		stages: []ports.Stage{
			mk("Lead In", 0, 10, blueprint.StageOpen),
			mk("Discovery", 1, 20, blueprint.StageOpen),
			mk("Demo Scheduled", 2, 40, blueprint.StageOpen, blueprint.Requirement{Kind: blueprint.KindCalculationComplete}),
			mk("Proposal", 3, 60, blueprint.StageOpen,
				blueprint.Requirement{Kind: blueprint.KindSpicedComplete},
				blueprint.Requirement{Kind: blueprint.KindCustomField, Field: blueprint.FieldAmount}),
			mk("Negotiation", 4, 80, blueprint.StageOpen),
			mk("Closed Won", 5, 100, blueprint.StageWon),
			mk("Closed Lost", 6, 0, blueprint.StageLost),
		},
	}
}

type stubCalc struct {
	res blueprint.CalculationResult
}

func (c stubCalc) Check(context.Context, uuid.UUID, uuid.UUID) (blueprint.CalculationResult, error) {
	return c.res, nil
}

type fixture struct {
	svc    *Service
	repo   *memRepo
	stages *fakeStages
	bus    *events.InMemoryBus
	tenant uuid.UUID
	now    time.Time
}

func newFixture(t *testing.T, calc blueprint.CalculationChecker) *fixture {
	t.Helper()
	f := &fixture{
		repo:   newMemRepo(),
		stages: defaultStages(),
		bus:    events.NewInMemoryBus(logger.Discard()),
		tenant: uuid.New(),
		now:    time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
	validator := blueprint.NewValidator(calc, 100*time.Millisecond, blueprint.WithClock(func() time.Time { return f.now }))
	f.svc = New(f.repo, f.stages, scoring.NewDefault(), validator, f.bus, logger.Discard())
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func ptr[T any](v T) *T { return &v }

func tierAInputs() scoring.Inputs {
	return scoring.Inputs{
		Source:                 ptr("referral"),
		EconomicUnits:          ptr(25),
		UsageVolume:            ptr(50),
		Urgency:                ptr(4),
		PrimaryMotivation:      ptr("cost_reduction"),
		DecisionRole:           ptr("decision_maker"),
		DecisionProcessClarity: ptr(4),
	}
}

// seed places a fresh tier A deal into the named stage.
func (f *fixture) seed(t *testing.T, stage string) domain.Deal {
	t.Helper()
	d, _, err := f.svc.CreateFromLead(context.Background(), NewDealParams{
		TenantID:    f.tenant,
		LeadID:      uuid.New(),
		LeadVersion: f.repo.leadVersion,
		Title:       "Acme rollout",
		Inputs:      tierAInputs(),
	})
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}
	if stage != "Lead In" {
		s := f.stages.byName(stage)
		f.repo.mu.Lock()
		d.StageID = s.ID
		f.repo.deals[d.ID] = d
		f.repo.mu.Unlock()
	}
	return d
}

func (f *fixture) move(t *testing.T, d domain.Deal, target string, override *blueprint.Override, admin bool) MoveResult {
	t.Helper()
	res, err := f.svc.MoveStage(context.Background(), f.tenant, d.ID, MoveParams{
		TargetStageID: f.stages.byName(target).ID,
		Override:      override,
		Actor:         blueprint.Actor{ID: uuid.New(), Name: "Rep", Admin: admin},
	})
	if err != nil {
		t.Fatalf("move to %s: %v", target, err)
	}
	return res
}

func TestMoveStageDeniedWithoutOverride(t *testing.T) {
	f := newFixture(t, stubCalc{})
	d := f.seed(t, "Discovery")

	res := f.move(t, d, "Proposal", nil, false)
	if res.Decision.Outcome != blueprint.OutcomeDenied {
		t.Fatalf("expected denied, got %s", res.Decision.Outcome)
	}
	if res.Deal.StageID != f.stages.byName("Discovery").ID {
		t.Fatalf("denied move must not change the stage")
	}
	if len(f.repo.records) != 1 || f.repo.records[0].Outcome != blueprint.OutcomeDenied {
		t.Fatalf("expected one denied record, got %+v", f.repo.records)
	}
	want := []string{"spiced_complete", "custom_field:amount"}
	got := f.repo.records[0].MissingRequirements
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected missing %v, got %v", want, got)
	}
}

func TestMoveStageOverrideRecordsReason(t *testing.T) {
	f := newFixture(t, stubCalc{})
	d := f.seed(t, "Discovery")

	res := f.move(t, d, "Proposal", &blueprint.Override{Reason: "  Exec sponsor asked to skip  "}, false)
	if res.Decision.Outcome != blueprint.OutcomeOverridden {
		t.Fatalf("expected overridden, got %s", res.Decision.Outcome)
	}
	if res.Deal.StageID != f.stages.byName("Proposal").ID || res.Deal.Compliance != blueprint.ComplianceOverridden {
		t.Fatalf("override must move the deal and mark it overridden: %+v", res.Deal)
	}
	rec := f.repo.records[0]
	if rec.OverrideReason == nil || *rec.OverrideReason != "Exec sponsor asked to skip" {
		t.Fatalf("expected trimmed override reason, got %v", rec.OverrideReason)
	}
}

func TestMoveStageBlankReasonIsDenied(t *testing.T) {
	f := newFixture(t, stubCalc{})
	d := f.seed(t, "Discovery")

	res := f.move(t, d, "Proposal", &blueprint.Override{Reason: "   "}, false)
	if res.Decision.Outcome != blueprint.OutcomeDenied {
		t.Fatalf("blank reason must be denied, got %s", res.Decision.Outcome)
	}
	if f.repo.records[0].OverrideReason != nil {
		t.Fatalf("denied record must not carry a reason")
	}
}

func TestMoveStageSameStageIsNoOp(t *testing.T) {
	f := newFixture(t, stubCalc{})
	d := f.seed(t, "Discovery")

	res := f.move(t, d, "Discovery", nil, false)
	if !res.Decision.NoOp || res.Decision.Outcome != blueprint.OutcomeAllowed {
		t.Fatalf("expected allowed no-op, got %+v", res.Decision)
	}
	if len(f.repo.records) != 0 {
		t.Fatalf("no-op must not be recorded")
	}
}

func TestMoveStageOutOfClosedStageNeedsAdmin(t *testing.T) {
	f := newFixture(t, stubCalc{})
	d := f.seed(t, "Closed Won")
	reason := &blueprint.Override{Reason: "Customer reopened negotiation"}

	if res := f.move(t, d, "Negotiation", reason, false); res.Decision.Outcome != blueprint.OutcomeDenied {
		t.Fatalf("non-admin must not reopen a closed deal, got %s", res.Decision.Outcome)
	}
	if res := f.move(t, d, "Negotiation", nil, true); res.Decision.Outcome != blueprint.OutcomeDenied {
		t.Fatalf("admin without reason must be denied, got %s", res.Decision.Outcome)
	}
	res := f.move(t, d, "Negotiation", reason, true)
	if res.Decision.Outcome != blueprint.OutcomeOverridden {
		t.Fatalf("admin with reason must reopen, got %s", res.Decision.Outcome)
	}
	if len(f.repo.records) != 3 {
		t.Fatalf("expected three audit records, got %d", len(f.repo.records))
	}
}

func TestMoveStageRetriesStaleWrites(t *testing.T) {
	f := newFixture(t, stubCalc{})
	d := f.seed(t, "Lead In")
	f.repo.staleWrites = 2

	res := f.move(t, d, "Discovery", nil, false)
	if res.Decision.Outcome != blueprint.OutcomeAllowed || res.Deal.StageID != f.stages.byName("Discovery").ID {
		t.Fatalf("expected move after retries, got %+v", res)
	}

	f.repo.staleWrites = maxWriteAttempts
	_, err := f.svc.MoveStage(context.Background(), f.tenant, d.ID, MoveParams{TargetStageID: f.stages.byName("Negotiation").ID})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict after exhausting retries, got %v", err)
	}
}

func TestMoveStageRejectsForeignPipeline(t *testing.T) {
	f := newFixture(t, stubCalc{})
	d := f.seed(t, "Lead In")
	foreign := ports.Stage{PipelineID: uuid.New(), Stage: blueprint.Stage{ID: uuid.New(), Name: "Elsewhere", Kind: blueprint.StageOpen}}
	f.stages.stages = append(f.stages.stages, foreign)

	_, err := f.svc.MoveStage(context.Background(), f.tenant, d.ID, MoveParams{TargetStageID: foreign.ID})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTierALeadReachesDemoWithForecastInRange(t *testing.T) {
	f := newFixture(t, stubCalc{res: blueprint.CalculationResult{IsComplete: true}})
	d := f.seed(t, "Lead In")
	if d.Tier != scoring.TierA {
		t.Fatalf("expected tier A, got %s (%d)", d.Tier, d.Score)
	}

	f.move(t, d, "Discovery", nil, false)
	res := f.move(t, d, "Demo Scheduled", nil, false)
	if res.Decision.Outcome != blueprint.OutcomeAllowed {
		t.Fatalf("expected allowed, got %s %+v", res.Decision.Outcome, res.Decision.Failures)
	}
	if !scoring.TierA.Forecast().Contains(res.Deal.ForecastProbability) {
		t.Fatalf("forecast %.2f outside tier A range", res.Deal.ForecastProbability)
	}
	if res.Deal.ForecastProbability != 0.60 {
		t.Fatalf("stage probability 40%% must clamp up to 0.60, got %.2f", res.Deal.ForecastProbability)
	}
	if res.Deal.LastActivityAt == nil || !res.Deal.LastActivityAt.Equal(f.now) {
		t.Fatalf("move must touch last activity")
	}
}

func TestUpdateClearsOverrideOnceRequirementsMet(t *testing.T) {
	f := newFixture(t, stubCalc{})
	d := f.seed(t, "Discovery")
	f.move(t, d, "Proposal", &blueprint.Override{Reason: "Board deadline"}, false)

	partial, err := f.svc.Update(context.Background(), f.tenant, d.ID, UpdateParams{
		Spiced: domain.SpicedPatch{Situation: ptr("Legacy CRM"), Pain: ptr("Manual <b>reports</b>")},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if partial.Compliance != blueprint.ComplianceOverridden {
		t.Fatalf("override must stick while requirements are unmet, got %s", partial.Compliance)
	}
	if partial.Spiced.Pain != "Manual reports" {
		t.Fatalf("expected sanitised pain, got %q", partial.Spiced.Pain)
	}

	full, err := f.svc.Update(context.Background(), f.tenant, d.ID, UpdateParams{
		AmountCents: ptr(int64(4_500_000)),
		Spiced: domain.SpicedPatch{
			Impact: ptr("2 FTE saved"), CriticalEvent: ptr("Q1 audit"),
			Economic: ptr("CFO"), Decision: ptr("Steering committee"),
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if full.Compliance != blueprint.ComplianceCompliant {
		t.Fatalf("expected compliant once requirements are met, got %s", full.Compliance)
	}
}

func TestUpdateRescoresAndReforecasts(t *testing.T) {
	f := newFixture(t, stubCalc{})
	d := f.seed(t, "Negotiation")

	updated, err := f.svc.Update(context.Background(), f.tenant, d.ID, UpdateParams{
		Inputs: scoring.Inputs{Source: ptr("other"), EconomicUnits: ptr(0), UsageVolume: ptr(0)},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Score >= d.Score {
		t.Fatalf("expected lower score after downgrade, %d -> %d", d.Score, updated.Score)
	}
	if !updated.Tier.Forecast().Contains(updated.ForecastProbability) {
		t.Fatalf("forecast %.2f outside tier %s range", updated.ForecastProbability, updated.Tier)
	}
}

func TestCreateFromLeadStaleLead(t *testing.T) {
	f := newFixture(t, stubCalc{})
	_, _, err := f.svc.CreateFromLead(context.Background(), NewDealParams{
		TenantID: f.tenant, LeadID: uuid.New(), LeadVersion: 99, Title: "Stale",
	})
	if !errors.Is(err, db.ErrStaleVersion) {
		t.Fatalf("expected stale version, got %v", err)
	}
}

func TestForecastRule(t *testing.T) {
	won := blueprint.Stage{Kind: blueprint.StageWon, Probability: 100}
	lost := blueprint.Stage{Kind: blueprint.StageLost, Probability: 0}
	open := blueprint.Stage{Kind: blueprint.StageOpen, Probability: 80}

	if domain.Forecast(won, scoring.TierD) != 1 || domain.Forecast(lost, scoring.TierA) != 0 {
		t.Fatalf("closed stages must force 1 and 0")
	}
	if got := domain.Forecast(open, scoring.TierB); got != 0.60 {
		t.Fatalf("expected 0.80 clamped to tier B max 0.60, got %.2f", got)
	}
}

func TestRescoreRecomputesWithoutTouchingActivity(t *testing.T) {
	f := newFixture(t, stubCalc{})
	ctx := context.Background()
	d := f.seed(t, "Negotiation")

	idle := f.now.Add(-96 * time.Hour)
	f.repo.mu.Lock()
	stored := f.repo.deals[d.ID]
	stored.LastActivityAt = &idle
	stored.Score, stored.Tier, stored.ForecastProbability = 0, scoring.TierD, 0.05
	f.repo.deals[d.ID] = stored
	f.repo.mu.Unlock()

	n, err := f.svc.Rescore(ctx, f.tenant)
	if err != nil || n != 1 {
		t.Fatalf("expected one deal rescored, got %d / %v", n, err)
	}
	got, _ := f.repo.Get(ctx, f.tenant, d.ID)
	if got.Score != d.Score || got.Tier != scoring.TierA {
		t.Fatalf("expected score %d tier A, got %d %s", d.Score, got.Score, got.Tier)
	}
	want := domain.Forecast(f.stages.byName("Negotiation").Stage, scoring.TierA)
	if got.ForecastProbability != want {
		t.Fatalf("expected forecast %.2f, got %.2f", want, got.ForecastProbability)
	}
	if got.LastActivityAt == nil || !got.LastActivityAt.Equal(idle) {
		t.Fatalf("rescore must keep last activity at %s, got %v", idle, got.LastActivityAt)
	}
}

func TestRescoreContinuesPastFailedDeal(t *testing.T) {
	f := newFixture(t, stubCalc{})
	ctx := context.Background()
	broken := f.seed(t, "Discovery")
	healthy := f.seed(t, "Discovery")
	f.repo.failWrites = map[uuid.UUID]bool{broken.ID: true}

	n, err := f.svc.Rescore(ctx, f.tenant)
	if err == nil {
		t.Fatalf("expected the failed deal to be reported")
	}
	if n != 1 {
		t.Fatalf("expected 1 deal rescored, got %d", n)
	}
	if got, _ := f.repo.Get(ctx, f.tenant, healthy.ID); got.Version != 2 {
		t.Fatalf("expected the healthy deal to be written, version %d", got.Version)
	}
}

func TestListTransitionsOldestFirst(t *testing.T) {
	f := newFixture(t, stubCalc{})
	ctx := context.Background()
	d := f.seed(t, "Discovery")

	f.move(t, d, "Proposal", nil, false)
	f.now = f.now.Add(time.Hour)
	f.move(t, d, "Proposal", &blueprint.Override{Reason: "Signed LOI"}, false)

	records, err := f.svc.ListTransitions(ctx, f.tenant, d.ID)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Outcome != blueprint.OutcomeDenied || records[1].Outcome != blueprint.OutcomeOverridden {
		t.Fatalf("expected denied then overridden, got %s then %s", records[0].Outcome, records[1].Outcome)
	}
	if !records[0].CreatedAt.Before(records[1].CreatedAt) {
		t.Fatalf("expected oldest record first")
	}

	if _, err := f.svc.ListTransitions(ctx, uuid.New(), d.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for another tenant, got %v", err)
	}
}

func TestRecordActivityResetsClock(t *testing.T) {
	f := newFixture(t, stubCalc{})
	ctx := context.Background()
	d := f.seed(t, "Discovery")
	f.now = f.now.Add(48 * time.Hour)

	got, err := f.svc.RecordActivity(ctx, f.tenant, d.ID)
	if err != nil {
		t.Fatalf("record activity: %v", err)
	}
	if got.LastActivityAt == nil || !got.LastActivityAt.Equal(f.now) {
		t.Fatalf("expected activity at %s, got %v", f.now, got.LastActivityAt)
	}
	if got.Version != d.Version {
		t.Fatalf("recording activity must not bump the version")
	}
	if _, err := f.svc.RecordActivity(ctx, uuid.New(), d.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for another tenant, got %v", err)
	}
}
