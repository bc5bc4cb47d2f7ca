package blueprint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sales_pipeline_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Outcome is the result of a transition attempt.
type Outcome string

const (
	OutcomeAllowed    Outcome = "allowed"
	OutcomeDenied     Outcome = "denied"
	OutcomeOverridden Outcome = "overridden"
)

// Compliance is a deal's conformance with its current stage's requirements.
type Compliance string

const (
	ComplianceCompliant           Compliance = "compliant"
	ComplianceOverridden          Compliance = "overridden"
	ComplianceMissingRequirements Compliance = "missing_requirements"
)

// FailureStageLocked marks an attempt to leave a closed stage.
const FailureStageLocked = "stage_locked"

// Failure is one unmet requirement.
type Failure struct {
	Requirement   string   `json:"requirement"`
	Message       string   `json:"message"`
	MissingFields []string `json:"missingFields,omitempty"`
}

// Override carries the justification for bypassing failed requirements.
type Override struct {
	Reason string
}

// Transition is a request to move a deal from one stage to another.
type Transition struct {
	Deal     DealSnapshot
	From     Stage
	To       Stage
	Override *Override
	Actor    Actor
}

// Record is the immutable audit entry of a transition attempt.
type Record struct {
	ID                  uuid.UUID `json:"id"`
	TenantID            uuid.UUID `json:"-"`
	DealID              uuid.UUID `json:"dealId"`
	FromStageID         uuid.UUID `json:"fromStageId"`
	ToStageID           uuid.UUID `json:"toStageId"`
	FromStageName       string    `json:"fromStageName"`
	ToStageName         string    `json:"toStageName"`
	Outcome             Outcome   `json:"outcome"`
	OverrideReason      *string   `json:"overrideReason,omitempty"`
	MissingRequirements []string  `json:"missingRequirements"`
	ActorID             uuid.UUID `json:"actorId"`
	ActorName           string    `json:"actorName"`
	CreatedAt           time.Time `json:"createdAt"`
}

// Decision is the validator's verdict.
type Decision struct {
	Outcome    Outcome
	Failures   []Failure
	Compliance Compliance
	// NoOp is set when the target equals the current stage. No record is
	// produced in that case.
	NoOp   bool
	Record *Record
}

// MissingRequirements returns the distinct failure keys in evaluation order.
func (d Decision) MissingRequirements() []string {
	return uniqueKeys(d.Failures)
}

// Validator evaluates stage requirements.
type Validator struct {
	calc    CalculationChecker
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a validator. calc may be nil, in which case every
// calculation requirement fails.
func NewValidator(calc CalculationChecker, timeout time.Duration, opts ...Option) *Validator {
	v := &Validator{
		calc:    calc,
		timeout: timeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Evaluate runs every requirement of stage against deal and returns the
// failures in declaration order.
func (v *Validator) Evaluate(ctx context.Context, deal DealSnapshot, stage Stage) []Failure {
	var failures []Failure
	for _, req := range stage.Requirements {
		if f, ok := v.evaluate(ctx, deal, req); !ok {
			failures = append(failures, f)
		}
	}
	return failures
}

// Attempt decides a transition. Only the target stage's requirements are
// evaluated; leaving a closed stage also requires an administrator override.
func (v *Validator) Attempt(ctx context.Context, t Transition) Decision {
	if t.From.ID == t.To.ID {
		return Decision{Outcome: OutcomeAllowed, NoOp: true}
	}

	failures := v.Evaluate(ctx, t.Deal, t.To)
	if t.From.Kind.Terminal() {
		failures = append(failures, Failure{
			Requirement: FailureStageLocked,
			Message:     fmt.Sprintf("Deal is in closed stage %q; reopening requires an administrator override", t.From.Name),
		})
	}

	reason := ""
	if t.Override != nil {
		reason = sanitize.Text(t.Override.Reason)
	}

	d := Decision{Failures: failures}
	switch {
	case len(failures) == 0:
		d.Outcome = OutcomeAllowed
		d.Compliance = ComplianceCompliant
	case reason == "":
		d.Outcome = OutcomeDenied
	case t.From.Kind.Terminal() && !t.Actor.Admin:
		d.Outcome = OutcomeDenied
		d.Failures = append(d.Failures, Failure{
			Requirement: FailureStageLocked,
			Message:     "Only administrators can override a closed stage",
		})
	default:
		d.Outcome = OutcomeOverridden
		d.Compliance = ComplianceOverridden
	}

	rec := &Record{
		ID:                  uuid.New(),
		TenantID:            t.Deal.TenantID,
		DealID:              t.Deal.ID,
		FromStageID:         t.From.ID,
		ToStageID:           t.To.ID,
		FromStageName:       t.From.Name,
		ToStageName:         t.To.Name,
		Outcome:             d.Outcome,
		MissingRequirements: uniqueKeys(d.Failures),
		ActorID:             t.Actor.ID,
		ActorName:           t.Actor.Name,
		CreatedAt:           v.now().UTC(),
	}
	if d.Outcome == OutcomeOverridden {
		rec.OverrideReason = &reason
	}
	d.Record = rec
	return d
}

// ComplianceFor derives the compliance of a deal sitting in a stage after an
// edit. An override stays in force until the requirements are met.
func ComplianceFor(current Compliance, failures []Failure) Compliance {
	if len(failures) == 0 {
		return ComplianceCompliant
	}
	if current == ComplianceOverridden {
		return ComplianceOverridden
	}
	return ComplianceMissingRequirements
}

func (v *Validator) evaluate(ctx context.Context, deal DealSnapshot, req Requirement) (Failure, bool) {
	switch req.Kind {
	case KindSpicedComplete:
		missing := deal.Spiced.Missing()
		if len(missing) == 0 {
			return Failure{}, true
		}
		return Failure{
			Requirement:   req.Key(),
			Message:       fmt.Sprintf("%s incomplete: missing %s", req.DisplayName(), strings.Join(missing, ", ")),
			MissingFields: missing,
		}, false

	case KindCalculationComplete:
		return v.checkCalculation(ctx, deal, req)

	case KindCustomField:
		if deal.fieldPresent(req.Field) {
			return Failure{}, true
		}
		return Failure{
			Requirement:   req.Key(),
			Message:       fmt.Sprintf("%s is required", req.DisplayName()),
			MissingFields: []string{req.Field},
		}, false

	default:
		return Failure{
			Requirement: req.Key(),
			Message:     fmt.Sprintf("Unsupported requirement %q", req.Kind),
		}, false
	}
}

// CheckCalculation asks the calculation collaborator about deal under the
// validator's timeout. Transport errors, timeouts and a missing collaborator
// are folded into an incomplete result carrying an explanatory message.
func (v *Validator) CheckCalculation(ctx context.Context, deal DealSnapshot) CalculationResult {
	if v.calc == nil {
		return CalculationResult{ErrorMessage: "Calculation service is not configured"}
	}

	callCtx := ctx
	if v.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	res, err := v.calc.Check(callCtx, deal.TenantID, deal.ID)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CalculationResult{ErrorMessage: "Calculation check timed out"}
	case err != nil:
		return CalculationResult{ErrorMessage: fmt.Sprintf("Calculation check failed: %v", err)}
	}
	if res.MissingFields == nil {
		res.MissingFields = []string{}
	}
	return res
}

func (v *Validator) checkCalculation(ctx context.Context, deal DealSnapshot, req Requirement) (Failure, bool) {
	res := v.CheckCalculation(ctx, deal)
	if res.IsComplete {
		return Failure{}, true
	}

	f := Failure{Requirement: req.Key()}
	if len(res.MissingFields) > 0 {
		f.MissingFields = res.MissingFields
	}
	switch {
	case res.ErrorMessage != "":
		f.Message = res.ErrorMessage
	case len(res.MissingFields) > 0:
		f.Message = fmt.Sprintf("%s incomplete: missing %s", req.DisplayName(), strings.Join(res.MissingFields, ", "))
	default:
		f.Message = fmt.Sprintf("%s incomplete", req.DisplayName())
	}
	return f, false
}

func uniqueKeys(failures []Failure) []string {
	seen := make(map[string]struct{}, len(failures))
	out := make([]string, 0, len(failures))
	for _, f := range failures {
		if _, ok := seen[f.Requirement]; ok {
			continue
		}
		seen[f.Requirement] = struct{}{}
		out = append(out, f.Requirement)
	}
	return out
}
