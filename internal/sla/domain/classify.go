package domain

import (
	"context"
	"math"
	"sort"
	"time"

	"sales_pipeline_backend/internal/scoring"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Level is an SLA classification.
type Level string

const (
	LevelCompliant Level = "compliant"
	LevelAtRisk    Level = "at_risk"
	LevelBreached  Level = "breached"
)

// Entity is the classifier's view of a lead or deal.
type Entity struct {
	ID             uuid.UUID
	Name           string
	Tier           scoring.Tier
	LastActivityAt *time.Time
}

// Classify compares elapsed time since last activity with the thresholds for
// the entity's tier. The second return is false when the entity has no
// activity timestamp and is therefore not classified.
func Classify(e Entity, p Policy, now time.Time) (Level, bool) {
	if e.LastActivityAt == nil {
		return "", false
	}
	elapsed := now.Sub(*e.LastActivityAt)
	t := p.For(e.Tier)
	switch {
	case elapsed >= hours(t.BreachHours):
		return LevelBreached, true
	case elapsed >= hours(t.WarningHours):
		return LevelAtRisk, true
	default:
		return LevelCompliant, true
	}
}

// Item is one entry of a status report.
type Item struct {
	ID                 uuid.UUID    `json:"id"`
	Name               string       `json:"name"`
	Tier               scoring.Tier `json:"tier"`
	LastActivityAt     time.Time    `json:"lastActivityAt"`
	HoursSinceActivity float64      `json:"hoursSinceActivity"`
	HoursToBreach      *float64     `json:"hoursToBreach,omitempty"`

	elapsed  time.Duration
	toBreach time.Duration
}

// Report aggregates classifications over many entities.
type Report struct {
	BreachedCount int    `json:"breachedCount"`
	AtRiskCount   int    `json:"atRiskCount"`
	BreachedItems []Item `json:"breachedItems"`
	AtRiskItems   []Item `json:"atRiskItems"`
}

const (
	statusChunkSize   = 256
	statusParallelism = 4
)

// Status classifies every entity and aggregates the non-compliant ones.
// Entities without activity are excluded. Breached items are ordered most
// overdue first and at-risk items soonest breach first, ties broken by id.
// The only error is cancellation of ctx.
func Status(ctx context.Context, entities []Entity, p Policy, now time.Time) (Report, error) {
	chunks := (len(entities) + statusChunkSize - 1) / statusChunkSize
	breached := make([][]Item, chunks)
	atRisk := make([][]Item, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusParallelism)
	for i := 0; i < chunks; i++ {
		start := i * statusChunkSize
		end := min(start+statusChunkSize, len(entities))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			breached[i], atRisk[i] = classifyChunk(entities[start:end], p, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{
		BreachedItems: flatten(breached),
		AtRiskItems:   flatten(atRisk),
	}
	report.BreachedCount = len(report.BreachedItems)
	report.AtRiskCount = len(report.AtRiskItems)

	sort.Slice(report.BreachedItems, func(i, j int) bool {
		a, b := report.BreachedItems[i], report.BreachedItems[j]
		if a.elapsed != b.elapsed {
			return a.elapsed > b.elapsed
		}
		return a.ID.String() < b.ID.String()
	})
	sort.Slice(report.AtRiskItems, func(i, j int) bool {
		a, b := report.AtRiskItems[i], report.AtRiskItems[j]
		if a.toBreach != b.toBreach {
			return a.toBreach < b.toBreach
		}
		return a.ID.String() < b.ID.String()
	})
	return report, nil
}

func classifyChunk(entities []Entity, p Policy, now time.Time) (breached, atRisk []Item) {
	for _, e := range entities {
		level, ok := Classify(e, p, now)
		if !ok || level == LevelCompliant {
			continue
		}
		elapsed := now.Sub(*e.LastActivityAt)
		item := Item{
			ID:                 e.ID,
			Name:               e.Name,
			Tier:               e.Tier,
			LastActivityAt:     *e.LastActivityAt,
			HoursSinceActivity: roundHours(elapsed),
			elapsed:            elapsed,
		}
		if level == LevelBreached {
			breached = append(breached, item)
			continue
		}
		item.toBreach = hours(p.For(e.Tier).BreachHours) - elapsed
		toBreach := roundHours(item.toBreach)
		item.HoursToBreach = &toBreach
		atRisk = append(atRisk, item)
	}
	return breached, atRisk
}

func flatten(parts [][]Item) []Item {
	out := make([]Item, 0)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func roundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}
