package domain

import (
	"context"
	"fmt"
	"testing"
	"time"

	"sales_pipeline_backend/internal/scoring"

	"github.com/google/uuid"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func at(hoursAgo float64) *time.Time {
	ts := now.Add(-time.Duration(hoursAgo * float64(time.Hour)))
	return &ts
}

func TestClassifyBoundaries(t *testing.T) {
	p := Policy{EntityType: EntityLeads, Thresholds: Thresholds{WarningHours: 24, BreachHours: 48}}

	cases := []struct {
		hoursAgo float64
		want     Level
	}{
		{0, LevelCompliant},
		{23.99, LevelCompliant},
		{24, LevelAtRisk},
		{47.5, LevelAtRisk},
		{48, LevelBreached},
		{500, LevelBreached},
	}
	for _, tc := range cases {
		got, ok := Classify(Entity{ID: uuid.New(), Tier: scoring.TierC, LastActivityAt: at(tc.hoursAgo)}, p, now)
		if !ok || got != tc.want {
			t.Fatalf("%.2fh: expected %s, got %s (ok=%v)", tc.hoursAgo, tc.want, got, ok)
		}
	}

	if _, ok := Classify(Entity{ID: uuid.New()}, p, now); ok {
		t.Fatalf("entity without activity must not be classified")
	}
}

func TestClassifyUsesTierOverride(t *testing.T) {
	p := DefaultPolicy(EntityLeads)
	e := Entity{ID: uuid.New(), Tier: scoring.TierA, LastActivityAt: at(8)}
	if got, _ := Classify(e, p, now); got != LevelBreached {
		t.Fatalf("tier A lead 8h stale must be breached, got %s", got)
	}
	e.Tier = scoring.TierB
	if got, _ := Classify(e, p, now); got != LevelCompliant {
		t.Fatalf("tier B lead 8h stale must be compliant, got %s", got)
	}
}

func TestStatusAggregatesAndOrders(t *testing.T) {
	p := Policy{EntityType: EntityDeals, Thresholds: Thresholds{WarningHours: 10, BreachHours: 20}}
	idA, idB := uuid.MustParse("00000000-0000-0000-0000-00000000000a"), uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	entities := []Entity{
		{ID: uuid.New(), Name: "fresh", LastActivityAt: at(1)},
		{ID: uuid.New(), Name: "no activity"},
		{ID: uuid.New(), Name: "old breach", LastActivityAt: at(100)},
		{ID: idB, Name: "breach tie b", LastActivityAt: at(30)},
		{ID: idA, Name: "breach tie a", LastActivityAt: at(30)},
		{ID: uuid.New(), Name: "risk soon", LastActivityAt: at(19)},
		{ID: uuid.New(), Name: "risk later", LastActivityAt: at(12)},
	}

	report, err := Status(context.Background(), entities, p, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.BreachedCount != 3 || report.AtRiskCount != 2 {
		t.Fatalf("expected 3 breached / 2 at risk, got %d / %d", report.BreachedCount, report.AtRiskCount)
	}

	names := func(items []Item) []string {
		out := make([]string, 0, len(items))
		for _, it := range items {
			out = append(out, it.Name)
		}
		return out
	}
	if got := fmt.Sprint(names(report.BreachedItems)); got != "[old breach breach tie a breach tie b]" {
		t.Fatalf("unexpected breached order %s", got)
	}
	if got := fmt.Sprint(names(report.AtRiskItems)); got != "[risk soon risk later]" {
		t.Fatalf("unexpected at-risk order %s", got)
	}
	if report.BreachedItems[0].HoursSinceActivity != 100 {
		t.Fatalf("expected 100 hours since activity, got %v", report.BreachedItems[0].HoursSinceActivity)
	}
	if h := report.AtRiskItems[0].HoursToBreach; h == nil || *h != 1 {
		t.Fatalf("expected 1 hour to breach, got %v", h)
	}
}

func TestStatusIsStableAcrossChunks(t *testing.T) {
	p := Policy{EntityType: EntityLeads, Thresholds: Thresholds{WarningHours: 1, BreachHours: 2}}
	entities := make([]Entity, 0, 1000)
	for i := 0; i < 1000; i++ {
		entities = append(entities, Entity{ID: uuid.New(), LastActivityAt: at(float64(i%5) + 0.5)})
	}

	first, err := Status(context.Background(), entities, p, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := Status(context.Background(), entities, p, now)
	if first.BreachedCount != second.BreachedCount || first.AtRiskCount != second.AtRiskCount {
		t.Fatalf("counts differ between runs")
	}
	for i := range first.BreachedItems {
		if first.BreachedItems[i].ID != second.BreachedItems[i].ID {
			t.Fatalf("breached order differs at %d", i)
		}
	}
	if first.AtRiskCount != 200 || first.BreachedCount != 600 {
		t.Fatalf("expected 200 at risk and 600 breached, got %d/%d", first.AtRiskCount, first.BreachedCount)
	}
}

func TestStatusHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	entities := []Entity{{ID: uuid.New(), LastActivityAt: at(1)}}
	if _, err := Status(ctx, entities, DefaultPolicy(EntityLeads), now); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy(EntityDeals).Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	bad := Policy{EntityType: EntityLeads, Thresholds: Thresholds{WarningHours: 10, BreachHours: 5}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("breach below warning must fail")
	}
	bad = DefaultPolicy(EntityLeads)
	bad.TierOverrides = map[scoring.Tier]Thresholds{"Z": {WarningHours: 1, BreachHours: 2}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("unknown tier must fail")
	}
}
