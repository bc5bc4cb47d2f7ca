package blueprint

import (
	"context"

	"github.com/google/uuid"
)

// CalculationResult is the completeness report of the external calculation
// service for one deal.
type CalculationResult struct {
	IsComplete    bool     `json:"isComplete"`
	MissingFields []string `json:"missingFields"`
	ErrorMessage  string   `json:"errorMessage,omitempty"`
}

// CalculationChecker queries the calculation service. Any returned error is
// treated as an unmet requirement.
type CalculationChecker interface {
	Check(ctx context.Context, tenantID, dealID uuid.UUID) (CalculationResult, error)
}
