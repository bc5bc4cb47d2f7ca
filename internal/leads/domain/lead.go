// Package domain provides core business rules for the leads bounded context.
package domain

import (
	"fmt"
	"strings"
	"time"

	"sales_pipeline_backend/internal/scoring"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a lead.
type Status string

const (
	StatusNew           Status = "new"
	StatusWorking       Status = "working"
	StatusInfoCollected Status = "info_collected"
	StatusQualified     Status = "qualified"
	StatusDisqualified  Status = "disqualified"
	StatusUnresponsive  Status = "unresponsive"
)

// forward lists the regular progression; any open status may additionally
// drop to disqualified or unresponsive.
var forward = map[Status][]Status{
	StatusNew:           {StatusWorking},
	StatusWorking:       {StatusInfoCollected},
	StatusInfoCollected: {StatusQualified},
	StatusUnresponsive:  {StatusWorking},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusWorking, StatusInfoCollected, StatusQualified, StatusDisqualified, StatusUnresponsive:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusQualified || s == StatusDisqualified
}

// CanTransition checks a status change against the lead lifecycle.
func (s Status) CanTransition(to Status) error {
	if !to.Valid() {
		return fmt.Errorf("unknown status %q", to)
	}
	if s.Terminal() {
		return fmt.Errorf("lead is %s and cannot change status", s)
	}
	if to == StatusDisqualified || (to == StatusUnresponsive && s != StatusUnresponsive) {
		return nil
	}
	for _, next := range forward[s] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("cannot move lead from %s to %s", s, to)
}

// Lead is a prospective customer before qualification.
type Lead struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Company         string
	Inputs          scoring.Inputs
	Score           int
	Tier            scoring.Tier
	CategoryScores  map[scoring.Category]int
	Status          Status
	QualifiedDealID *uuid.UUID
	LastActivityAt  *time.Time
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DisplayName is the name shown in lists and SLA reports.
func (l Lead) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(l.FirstName) + " " + strings.TrimSpace(l.LastName))
	switch {
	case name != "" && l.Company != "":
		return name + " (" + l.Company + ")"
	case name != "":
		return name
	case l.Company != "":
		return l.Company
	default:
		return l.Email
	}
}

// ApplyScore stores a scoring result on the lead.
func (l *Lead) ApplyScore(r scoring.Result) {
	l.Score = r.Total
	l.Tier = r.Tier
	l.CategoryScores = r.CategoryScores
}

// Activity is the SLA view of an open lead.
type Activity struct {
	ID             uuid.UUID
	Name           string
	Tier           scoring.Tier
	LastActivityAt *time.Time
}
