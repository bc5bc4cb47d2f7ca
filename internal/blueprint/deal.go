package blueprint

import (
	"strings"

	"github.com/google/uuid"
)

// Spiced holds the six discovery slots.
type Spiced struct {
	Situation     string `json:"situation"`
	Pain          string `json:"pain"`
	Impact        string `json:"impact"`
	CriticalEvent string `json:"criticalEvent"`
	Economic      string `json:"economic"`
	Decision      string `json:"decision"`
}

// Missing lists the blank slots in SPICED order.
func (s Spiced) Missing() []string {
	slots := []struct {
		name  string
		value string
	}{
		{"situation", s.Situation},
		{"pain", s.Pain},
		{"impact", s.Impact},
		{"critical_event", s.CriticalEvent},
		{"economic", s.Economic},
		{"decision", s.Decision},
	}
	var missing []string
	for _, slot := range slots {
		if strings.TrimSpace(slot.value) == "" {
			missing = append(missing, slot.name)
		}
	}
	return missing
}

// Complete reports whether every slot is filled.
func (s Spiced) Complete() bool {
	return len(s.Missing()) == 0
}

// Stage is the validator's view of a pipeline stage.
type Stage struct {
	ID           uuid.UUID
	Name         string
	OrderIndex   int
	Probability  int
	Kind         StageKind
	Requirements []Requirement
}

// DealSnapshot is the deal data predicates read.
type DealSnapshot struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	AmountCents  *int64
	Spiced       Spiced
	CustomFields map[string]string
}

func (d DealSnapshot) fieldPresent(field string) bool {
	if field == FieldAmount {
		return d.AmountCents != nil && *d.AmountCents > 0
	}
	return strings.TrimSpace(d.CustomFields[field]) != ""
}

// Actor is the user attempting a transition.
type Actor struct {
	ID    uuid.UUID
	Name  string
	Admin bool
}
