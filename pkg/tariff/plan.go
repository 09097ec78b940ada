package tariff

import (
	"errors"
	"fmt"
	"os"

	"github.com/raterudder/powerwall-tou/pkg/types"
	"gopkg.in/yaml.v3"
)

// SeasonAll is the key of the only season in the document.
const SeasonAll = "ALL"

// Plan holds the identity fields of the published tariff. None of them are
// derived from prices.
type Plan struct {
	Utility      string              `yaml:"utility"`
	Code         string              `yaml:"code"`
	Name         string              `yaml:"name"`
	Currency     string              `yaml:"currency"`
	DailyCharges []types.DailyCharge `yaml:"dailyCharges"`
}

// DefaultPlan returns the Globird ZEROHERO plan.
func DefaultPlan() Plan {
	return Plan{
		Utility:  "Globird",
		Code:     "ZEROHERO",
		Name:     "Globird ZEROHERO VPP",
		Currency: "USD",
		DailyCharges: []types.DailyCharge{
			{Name: "Daily Charge", Amount: 1.1},
		},
	}
}

// Validate ensures the plan is usable.
func (p Plan) Validate() error {
	var errs []error
	if p.Utility == "" {
		errs = append(errs, errors.New("utility is required"))
	}
	if p.Code == "" {
		errs = append(errs, errors.New("code is required"))
	}
	if p.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if p.Currency == "" {
		errs = append(errs, errors.New("currency is required"))
	}
	for _, dc := range p.DailyCharges {
		if dc.Name == "" {
			errs = append(errs, errors.New("daily charge name is required"))
		}
		if dc.Amount < 0 {
			errs = append(errs, fmt.Errorf("daily charge %q is negative", dc.Name))
		}
	}
	return errors.Join(errs...)
}

// LoadPlan returns DefaultPlan with any fields present in the YAML file at path
// overriding it. An empty path returns DefaultPlan.
func LoadPlan(path string) (Plan, error) {
	plan := DefaultPlan()
	if path == "" {
		return plan, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read plan file: %w", err)
	}
	if err := yaml.Unmarshal(b, &plan); err != nil {
		return Plan{}, fmt.Errorf("failed to parse plan file: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return Plan{}, fmt.Errorf("invalid plan file %s: %w", path, err)
	}
	return plan, nil
}
