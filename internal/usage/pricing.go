package usage

import "strings"

// Price is USD per one million tokens.
type Price struct {
	InputPer1M  float64 `json:"input_per_1m"`
	OutputPer1M float64 `json:"output_per_1m"`
}

// Pricing maps a model name (or a model-name prefix) to its price.
type Pricing map[string]Price

// DefaultPricing covers the Claude model families the analyzer targets.
func DefaultPricing() Pricing {
	return Pricing{
		"claude-opus-4":     {InputPer1M: 15, OutputPer1M: 75},
		"claude-sonnet-4":   {InputPer1M: 3, OutputPer1M: 15},
		"claude-haiku-4":    {InputPer1M: 1, OutputPer1M: 5},
		"claude-3-7-sonnet": {InputPer1M: 3, OutputPer1M: 15},
		"claude-3-5-sonnet": {InputPer1M: 3, OutputPer1M: 15},
		"claude-3-5-haiku":  {InputPer1M: 0.8, OutputPer1M: 4},
	}
}

// Lookup resolves the price for model: exact match first, then the longest
// configured prefix.
func (p Pricing) Lookup(model string) (Price, bool) {
	if price, ok := p[model]; ok {
		return price, true
	}
	best := ""
	for prefix := range p {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return Price{}, false
	}
	return p[best], true
}

// Estimate returns the USD cost of a round-trip. Unknown models cost 0.
func (p Pricing) Estimate(model string, inputUnits, outputUnits int64) float64 {
	price, ok := p.Lookup(model)
	if !ok {
		return 0
	}
	return float64(inputUnits)*price.InputPer1M/1e6 + float64(outputUnits)*price.OutputPer1M/1e6
}

// Merge returns a copy of p with entries from o overriding it.
func (p Pricing) Merge(o Pricing) Pricing {
	out := make(Pricing, len(p)+len(o))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}
