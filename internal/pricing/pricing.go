package pricing

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelPricing is USD per 1K tokens.
type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table maps provider to model to price.
type Table struct {
	Providers map[string]map[string]ModelPricing
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return &Table{Providers: providers}, nil
}

// Lookup finds a model's price. model may be "provider/model"; a bare name
// is searched across providers in name order.
func (t *Table) Lookup(model string) (ModelPricing, bool) {
	if t == nil || t.Providers == nil {
		return ModelPricing{}, false
	}
	if provider, name, ok := strings.Cut(model, "/"); ok {
		p, found := t.Providers[provider][name]
		return p, found
	}
	providers := make([]string, 0, len(t.Providers))
	for name := range t.Providers {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	for _, provider := range providers {
		if p, ok := t.Providers[provider][model]; ok {
			return p, true
		}
	}
	return ModelPricing{}, false
}

// Cost prices one rollout. Unknown models cost 0.
func (t *Table) Cost(model string, promptTokens, completionTokens int) float64 {
	p, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return (float64(promptTokens)/1000.0)*p.Input + (float64(completionTokens)/1000.0)*p.Output
}
