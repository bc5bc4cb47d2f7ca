package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"sales_pipeline_backend/internal/events"
	"sales_pipeline_backend/internal/leads/domain"
	"sales_pipeline_backend/internal/leads/ports"
	"sales_pipeline_backend/internal/leads/repository"
	"sales_pipeline_backend/internal/scoring"
	"sales_pipeline_backend/platform/apperr"
	"sales_pipeline_backend/platform/db"
	"sales_pipeline_backend/platform/logger"
)

func ptr[T any](v T) *T { return &v }

type memRepo struct {
	mu          sync.Mutex
	leads       map[uuid.UUID]domain.Lead
	staleWrites int
	failWrites  map[uuid.UUID]bool
}

func newMemRepo() *memRepo {
	return &memRepo{leads: make(map[uuid.UUID]domain.Lead)}
}

func (r *memRepo) Create(_ context.Context, l domain.Lead) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.ID = uuid.New()
	l.Version = 1
	r.leads[l.ID] = l
	return l, nil
}

func (r *memRepo) Get(_ context.Context, tenantID, leadID uuid.UUID) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[leadID]
	if !ok || l.TenantID != tenantID {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	return l, nil
}

func (r *memRepo) List(_ context.Context, params repository.ListParams) ([]domain.Lead, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Lead
	for _, l := range r.leads {
		if l.TenantID == params.TenantID {
			out = append(out, l)
		}
	}
	return out, len(out), nil
}

func (r *memRepo) Update(_ context.Context, l domain.Lead, expectedVersion int) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staleWrites > 0 {
		r.staleWrites--
		return domain.Lead{}, db.ErrStaleVersion
	}
	if r.failWrites[l.ID] {
		return domain.Lead{}, errors.New("connection reset")
	}
	cur, ok := r.leads[l.ID]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	if cur.Version != expectedVersion {
		return domain.Lead{}, db.ErrStaleVersion
	}
	l.Version = cur.Version + 1
	r.leads[l.ID] = l
	return l, nil
}

func (r *memRepo) TouchActivity(_ context.Context, tenantID, leadID uuid.UUID, at time.Time) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[leadID]
	if !ok || l.TenantID != tenantID {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	l.LastActivityAt = &at
	r.leads[leadID] = l
	return l, nil
}

func (r *memRepo) ListActivity(_ context.Context, tenantID uuid.UUID) ([]domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Activity
	for _, l := range r.leads {
		if l.TenantID == tenantID && !l.Status.Terminal() {
			out = append(out, domain.Activity{ID: l.ID, Name: l.DisplayName(), Tier: l.Tier, LastActivityAt: l.LastActivityAt})
		}
	}
	return out, nil
}

// fakeQualifier mimics the transactional deal creation: it checks the lead
// version and flips the lead to qualified in the same step.
type fakeQualifier struct {
	repo  *memRepo
	calls int
}

func (q *fakeQualifier) CreateDeal(_ context.Context, p ports.QualifyParams) (ports.QualifiedDeal, error) {
	q.repo.mu.Lock()
	defer q.repo.mu.Unlock()
	q.calls++
	l := q.repo.leads[p.LeadID]
	if l.Status == domain.StatusQualified {
		return ports.QualifiedDeal{}, apperr.Conflict("lead is already qualified")
	}
	if l.Version != p.LeadVersion {
		return ports.QualifiedDeal{}, db.ErrStaleVersion
	}
	dealID := uuid.New()
	l.Status = domain.StatusQualified
	l.QualifiedDealID = &dealID
	l.Version++
	q.repo.leads[l.ID] = l
	return ports.QualifiedDeal{DealID: dealID, StageID: uuid.New(), StageName: "Lead In"}, nil
}

type fixture struct {
	repo      *memRepo
	qualifier *fakeQualifier
	bus       *events.InMemoryBus
	svc       *Service
	tenant    uuid.UUID
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemRepo()
	q := &fakeQualifier{repo: repo}
	bus := events.NewInMemoryBus(logger.Discard())
	svc := New(repo, scoring.NewDefault(), q, bus, "US", logger.Discard())
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })
	return &fixture{repo: repo, qualifier: q, bus: bus, svc: svc, tenant: uuid.New(), now: now}
}

func strongInputs() scoring.Inputs {
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

func (f *fixture) create(t *testing.T, in scoring.Inputs) domain.Lead {
	t.Helper()
	l, err := f.svc.Create(context.Background(), f.tenant, CreateParams{
		FirstName: " Ada ",
		LastName:  "Lovelace",
		Email:     " Ada@Example.COM ",
		Phone:     "(202) 456-1111",
		Company:   "<b>Analytical</b> Engines",
		Inputs:    in,
	})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	return l
}

func TestCreateNormalizesAndScores(t *testing.T) {
	f := newFixture(t)
	var scored int
	var mu sync.Mutex
	f.bus.Subscribe(events.LeadScored{}.EventName(), events.HandlerFunc(func(context.Context, events.Event) error {
		mu.Lock()
		scored++
		mu.Unlock()
		return nil
	}))

	l := f.create(t, strongInputs())
	f.bus.Wait()

	if l.FirstName != "Ada" || l.Company != "Analytical Engines" {
		t.Fatalf("expected sanitized identity, got %q / %q", l.FirstName, l.Company)
	}
	if l.Email != "ada@example.com" {
		t.Fatalf("expected lowercased email, got %q", l.Email)
	}
	if l.Phone != "+12024561111" {
		t.Fatalf("expected E.164 phone, got %q", l.Phone)
	}
	if l.Status != domain.StatusNew || l.Tier != scoring.TierA {
		t.Fatalf("expected new tier A lead, got %s / %s", l.Status, l.Tier)
	}
	if l.LastActivityAt == nil || !l.LastActivityAt.Equal(f.now) {
		t.Fatalf("expected activity clock to start at creation")
	}
	mu.Lock()
	defer mu.Unlock()
	if scored != 1 {
		t.Fatalf("expected one scored event, got %d", scored)
	}
}

func TestCreateRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.tenant, CreateParams{Company: "<i></i>"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateRescoresFromMergedInputs(t *testing.T) {
	f := newFixture(t)
	l := f.create(t, scoring.Inputs{Source: ptr("outbound")})

	updated, err := f.svc.Update(context.Background(), f.tenant, l.ID, UpdateParams{Inputs: strongInputs()})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Score <= l.Score || updated.Tier != scoring.TierA {
		t.Fatalf("expected rescore to tier A, got %d %s", updated.Score, updated.Tier)
	}
	if updated.Version != l.Version+1 {
		t.Fatalf("expected version bump, got %d", updated.Version)
	}
	if updated.Email != l.Email {
		t.Fatalf("unset fields must be kept")
	}
}

func TestUpdateRetriesStaleWrites(t *testing.T) {
	f := newFixture(t)
	l := f.create(t, strongInputs())

	f.repo.staleWrites = 2
	if _, err := f.svc.Update(context.Background(), f.tenant, l.ID, UpdateParams{Company: ptr("Babbage Ltd")}); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}

	f.repo.staleWrites = maxWriteAttempts
	_, err := f.svc.Update(context.Background(), f.tenant, l.ID, UpdateParams{Company: ptr("Other")})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict after exhausting retries, got %v", err)
	}
}

func TestChangeStatusFollowsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, strongInputs())

	if _, err := f.svc.ChangeStatus(ctx, f.tenant, l.ID, domain.StatusInfoCollected); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected skipping working to fail validation, got %v", err)
	}
	if _, err := f.svc.ChangeStatus(ctx, f.tenant, l.ID, domain.StatusQualified); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected direct qualification to be rejected, got %v", err)
	}

	working, err := f.svc.ChangeStatus(ctx, f.tenant, l.ID, domain.StatusWorking)
	if err != nil || working.Status != domain.StatusWorking {
		t.Fatalf("expected working, got %v / %v", working.Status, err)
	}
	same, err := f.svc.ChangeStatus(ctx, f.tenant, l.ID, domain.StatusWorking)
	if err != nil || same.Version != working.Version {
		t.Fatalf("expected same-status change to be a no-op, got version %d / %v", same.Version, err)
	}

	if _, err := f.svc.ChangeStatus(ctx, f.tenant, l.ID, domain.StatusDisqualified); err != nil {
		t.Fatalf("disqualify: %v", err)
	}
	if _, err := f.svc.ChangeStatus(ctx, f.tenant, l.ID, domain.StatusWorking); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected terminal lead to conflict, got %v", err)
	}
}

func TestQualifyCreatesDealOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, strongInputs())

	deal, err := f.svc.Qualify(ctx, f.tenant, l.ID, uuid.New())
	if err != nil {
		t.Fatalf("qualify: %v", err)
	}
	stored, _ := f.repo.Get(ctx, f.tenant, l.ID)
	if stored.Status != domain.StatusQualified || stored.QualifiedDealID == nil || *stored.QualifiedDealID != deal.DealID {
		t.Fatalf("expected lead to point at the new deal, got %+v", stored)
	}

	if _, err := f.svc.Qualify(ctx, f.tenant, l.ID, uuid.New()); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected second qualification to conflict, got %v", err)
	}
	if f.qualifier.calls != 1 {
		t.Fatalf("expected the qualifier to run once, ran %d times", f.qualifier.calls)
	}
	if _, err := f.svc.Update(ctx, f.tenant, l.ID, UpdateParams{Company: ptr("x")}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected qualified lead to be read-only, got %v", err)
	}
}

func TestQualifyRejectsDisqualifiedLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, strongInputs())
	if _, err := f.svc.ChangeStatus(ctx, f.tenant, l.ID, domain.StatusDisqualified); err != nil {
		t.Fatalf("disqualify: %v", err)
	}

	if _, err := f.svc.Qualify(ctx, f.tenant, l.ID, uuid.New()); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.qualifier.calls != 0 {
		t.Fatalf("expected no deal creation for a disqualified lead")
	}
}

func TestRescoreSkipsTerminalLeads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, strongInputs())
	f.create(t, scoring.Inputs{})
	closed := f.create(t, strongInputs())
	if _, err := f.svc.ChangeStatus(ctx, f.tenant, closed.ID, domain.StatusDisqualified); err != nil {
		t.Fatalf("disqualify: %v", err)
	}

	n, err := f.svc.Rescore(ctx, f.tenant)
	if err != nil {
		t.Fatalf("rescore: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 leads rescored, got %d", n)
	}
}

func TestRescoreKeepsActivityClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, strongInputs())

	idle := f.now.Add(-72 * time.Hour)
	f.repo.mu.Lock()
	stored := f.repo.leads[l.ID]
	stored.LastActivityAt = &idle
	stored.Score, stored.Tier = 0, scoring.TierD
	f.repo.leads[l.ID] = stored
	f.repo.mu.Unlock()

	if _, err := f.svc.Rescore(ctx, f.tenant); err != nil {
		t.Fatalf("rescore: %v", err)
	}
	got, _ := f.repo.Get(ctx, f.tenant, l.ID)
	if got.Score != l.Score || got.Tier != scoring.TierA {
		t.Fatalf("expected score %d tier A to be restored, got %d %s", l.Score, got.Score, got.Tier)
	}
	if got.LastActivityAt == nil || !got.LastActivityAt.Equal(idle) {
		t.Fatalf("rescore must keep last activity at %s, got %v", idle, got.LastActivityAt)
	}
}

func TestRescoreContinuesPastFailedLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, strongInputs())
	broken := f.create(t, strongInputs())
	last := f.create(t, scoring.Inputs{})
	f.repo.failWrites = map[uuid.UUID]bool{broken.ID: true}

	n, err := f.svc.Rescore(ctx, f.tenant)
	if err == nil {
		t.Fatalf("expected the failed lead to be reported")
	}
	if n != 2 {
		t.Fatalf("expected 2 leads rescored, got %d", n)
	}
	for _, id := range []uuid.UUID{first.ID, last.ID} {
		got, _ := f.repo.Get(ctx, f.tenant, id)
		if got.Version != 2 {
			t.Fatalf("expected lead %s to be written, version %d", id, got.Version)
		}
	}
}
