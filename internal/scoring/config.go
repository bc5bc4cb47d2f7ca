package scoring

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed weights.yaml
var defaultWeightsYAML []byte

const weightSumTolerance = 1e-9

// Linear normalises a numeric input as min(value/cap, 1).
type Linear struct {
	Weight float64 `yaml:"weight"`
	Cap    float64 `yaml:"cap"`
}

// Presence contributes its full weight when a free-text input is non-blank.
type Presence struct {
	Weight float64 `yaml:"weight"`
}

// Table maps enum values to a normalised [0,1] contribution. Unknown values
// contribute nothing.
type Table map[string]float64

// WeightedTable is a Table that shares its category with another input.
type WeightedTable struct {
	Weight float64 `yaml:"weight"`
	Values Table   `yaml:"values"`
}

// Config holds the configurable sub-formulas of every category.
type Config struct {
	Version string `yaml:"version"`

	Size struct {
		EconomicUnits Linear `yaml:"economic_units"`
		UsageVolume   Linear `yaml:"usage_volume"`
	} `yaml:"size_economic_impact"`

	Urgency struct {
		Urgency      Linear   `yaml:"urgency"`
		TriggerEvent Presence `yaml:"trigger_event"`
	} `yaml:"urgency_willingness"`

	Source     Table `yaml:"lead_source_quality"`
	Motivation Table `yaml:"strategic_motivation"`

	Decision struct {
		Role    WeightedTable `yaml:"decision_role"`
		Clarity Linear        `yaml:"decision_process_clarity"`
	} `yaml:"decision_readiness"`
}

// DefaultConfig returns the embedded configuration.
func DefaultConfig() Config {
	cfg, err := ParseConfig(defaultWeightsYAML)
	if err != nil {
		panic(fmt.Sprintf("scoring: embedded weights invalid: %v", err))
	}
	return cfg
}

// LoadConfig reads a weights file from path. An empty path yields the
// embedded defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read scoring config: %w", err)
	}
	return ParseConfig(raw)
}

// ParseConfig decodes and validates a YAML weights document.
func ParseConfig(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse scoring config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every category's sub-weights sum to 1, caps are
// positive and table values stay in [0,1].
func (c Config) Validate() error {
	var errs []error

	errs = append(errs, checkSum(CategorySize, c.Size.EconomicUnits.Weight, c.Size.UsageVolume.Weight))
	errs = append(errs, checkCap(CategorySize, "economic_units", c.Size.EconomicUnits.Cap))
	errs = append(errs, checkCap(CategorySize, "usage_volume", c.Size.UsageVolume.Cap))

	errs = append(errs, checkSum(CategoryUrgency, c.Urgency.Urgency.Weight, c.Urgency.TriggerEvent.Weight))
	errs = append(errs, checkCap(CategoryUrgency, "urgency", c.Urgency.Urgency.Cap))

	errs = append(errs, checkTable(CategorySource, "", c.Source))
	errs = append(errs, checkTable(CategoryMotivation, "", c.Motivation))

	errs = append(errs, checkSum(CategoryDecision, c.Decision.Role.Weight, c.Decision.Clarity.Weight))
	errs = append(errs, checkTable(CategoryDecision, "decision_role", c.Decision.Role.Values))
	errs = append(errs, checkCap(CategoryDecision, "decision_process_clarity", c.Decision.Clarity.Cap))

	return errors.Join(errs...)
}

func checkSum(cat Category, weights ...float64) error {
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("%s: sub-weights must not be negative", cat)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%s: sub-weights sum to %.4f, want 1", cat, sum)
	}
	return nil
}

func checkCap(cat Category, input string, capValue float64) error {
	if capValue <= 0 {
		return fmt.Errorf("%s.%s: cap must be positive", cat, input)
	}
	return nil
}

func checkTable(cat Category, input string, table Table) error {
	if len(table) == 0 {
		return fmt.Errorf("%s: value table is empty", qualified(cat, input))
	}
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := table[k]; v < 0 || v > 1 {
			return fmt.Errorf("%s: value %q=%.2f outside [0,1]", qualified(cat, input), k, v)
		}
	}
	return nil
}

func qualified(cat Category, input string) string {
	if input == "" {
		return string(cat)
	}
	return string(cat) + "." + input
}

// Sources lists the lead source values the configuration knows, sorted.
func (c Config) Sources() []string { return c.Source.keys() }

// Motivations lists the configured primary motivation values, sorted.
func (c Config) Motivations() []string { return c.Motivation.keys() }

// DecisionRoles lists the configured decision role values, sorted.
func (c Config) DecisionRoles() []string { return c.Decision.Role.Values.keys() }

func (t Table) keys() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
