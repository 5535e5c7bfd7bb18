package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// PlanPage is one page load in a capture plan.
type PlanPage struct {
	URL   string `yaml:"url"`
	Label string `yaml:"label"`
}

// Plan is the top-level YAML document read by `tabtrace plan`.
type Plan struct {
	Repeat int        `yaml:"repeat"`
	Pages  []PlanPage `yaml:"pages"`
}

// LoadPlan reads and validates a capture plan file. Repeat defaults to 1.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("capture plan: %w", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("capture plan: %w", err)
	}
	if len(plan.Pages) < 1 {
		return nil, fmt.Errorf("capture plan: at least one page entry is required")
	}
	if plan.Repeat < 0 {
		return nil, fmt.Errorf("capture plan: repeat must not be negative")
	}
	if plan.Repeat == 0 {
		plan.Repeat = 1
	}
	for i, p := range plan.Pages {
		if p.URL == "" {
			return nil, fmt.Errorf("capture plan: pages[%d] missing url", i)
		}
		u, err := url.Parse(p.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("capture plan: pages[%d] url %q is not an absolute http(s) URL", i, p.URL)
		}
	}
	return &plan, nil
}
