package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/pipelines/domain"
	"sales_pipeline_backend/platform/apperr"
	"sales_pipeline_backend/platform/logger"
)

type memRepo struct {
	mu        sync.Mutex
	pipelines map[uuid.UUID]domain.Pipeline
	creates   int
}

func newMemRepo() *memRepo {
	return &memRepo{pipelines: make(map[uuid.UUID]domain.Pipeline)}
}

func (m *memRepo) ListPipelines(_ context.Context, tenantID uuid.UUID) ([]domain.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Pipeline
	for _, p := range m.pipelines {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memRepo) GetPipeline(_ context.Context, tenantID, id uuid.UUID) (domain.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pipelines[id]
	if !ok || p.TenantID != tenantID {
		return domain.Pipeline{}, apperr.NotFound("pipeline not found")
	}
	return p, nil
}

func (m *memRepo) GetDefaultPipeline(_ context.Context, tenantID uuid.UUID) (domain.Pipeline, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pipelines {
		if p.TenantID == tenantID && p.IsDefault {
			return p, true, nil
		}
	}
	return domain.Pipeline{}, false, nil
}

func (m *memRepo) CreatePipeline(_ context.Context, p domain.Pipeline) (domain.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.pipelines {
		if existing.TenantID == p.TenantID && (existing.Name == p.Name || (existing.IsDefault && p.IsDefault)) {
			return domain.Pipeline{}, apperr.Conflict("exists")
		}
	}
	m.creates++
	p.ID = uuid.New()
	for i := range p.Stages {
		p.Stages[i].ID = uuid.New()
		p.Stages[i].PipelineID = p.ID
	}
	m.pipelines[p.ID] = p
	return p, nil
}

func (m *memRepo) GetStage(_ context.Context, tenantID, stageID uuid.UUID) (domain.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pipelines {
		if s, ok := p.StageByID(stageID); ok && p.TenantID == tenantID {
			return s, nil
		}
	}
	return domain.Stage{}, apperr.NotFound("stage not found")
}

func (m *memRepo) UpdateStageRequirements(_ context.Context, tenantID, pipelineID, stageID uuid.UUID, reqs []blueprint.Requirement) (domain.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pipelines[pipelineID]
	if !ok || p.TenantID != tenantID {
		return domain.Stage{}, apperr.NotFound("stage not found")
	}
	for i := range p.Stages {
		if p.Stages[i].ID == stageID {
			p.Stages[i].Requirements = reqs
			return p.Stages[i], nil
		}
	}
	return domain.Stage{}, apperr.NotFound("stage not found")
}

func (m *memRepo) ListTenants(context.Context) ([]uuid.UUID, error) { return nil, nil }

func TestDefaultTemplateShape(t *testing.T) {
	name, stages, err := DefaultTemplate()
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if name == "" || len(stages) != 7 {
		t.Fatalf("expected 7 named stages, got %q/%d", name, len(stages))
	}
	if stages[0].Name != "Lead In" || stages[0].OrderIndex != 0 {
		t.Fatalf("first stage must be Lead In, got %+v", stages[0])
	}
	demo := stages[2]
	if demo.Name != "Demo Scheduled" || len(demo.Requirements) != 1 || demo.Requirements[0].Kind != blueprint.KindCalculationComplete {
		t.Fatalf("Demo Scheduled must be calculation gated, got %+v", demo)
	}
	proposal := stages[3]
	if len(proposal.Requirements) != 2 || proposal.Requirements[1].Field != blueprint.FieldAmount {
		t.Fatalf("Proposal must require SPICED and amount, got %+v", proposal.Requirements)
	}
	if stages[5].Kind != blueprint.StageWon || stages[6].Kind != blueprint.StageLost {
		t.Fatalf("closed stages must be terminal, got %s/%s", stages[5].Kind, stages[6].Kind)
	}
}

func TestDefaultProvisionsOnce(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo, logger.Discard())
	tenantID := uuid.New()

	first, err := svc.Default(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	second, err := svc.Default(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if first.ID != second.ID || repo.creates != 1 {
		t.Fatalf("expected a single provisioned pipeline, got %d creates", repo.creates)
	}

	list, err := svc.List(context.Background(), uuid.New())
	if err != nil || len(list) != 1 || !list[0].IsDefault {
		t.Fatalf("listing for a fresh tenant must provision the default, got %v (err=%v)", list, err)
	}
}

func TestCreateValidatesStages(t *testing.T) {
	svc := New(newMemRepo(), logger.Discard())
	_, err := svc.Create(context.Background(), uuid.New(), CreateParams{
		Name: "Enterprise",
		Stages: []domain.Stage{
			{Name: "Intro", OrderIndex: 1},
			{Name: "Pilot", OrderIndex: 1},
		},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for duplicate order index, got %v", err)
	}

	p, err := svc.Create(context.Background(), uuid.New(), CreateParams{
		Name:   " Enterprise ",
		Stages: []domain.Stage{{Name: "Intro", OrderIndex: 1, Probability: 10}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Name != "Enterprise" || p.Stages[0].Kind != blueprint.StageOpen {
		t.Fatalf("expected trimmed name and open kind, got %q/%s", p.Name, p.Stages[0].Kind)
	}
}

func TestUpdateRequirementsRejectsInvalid(t *testing.T) {
	svc := New(newMemRepo(), logger.Discard())
	_, err := svc.UpdateRequirements(context.Background(), uuid.New(), uuid.New(), uuid.New(), []blueprint.Requirement{
		{Kind: blueprint.KindCustomField, Field: "  "},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
