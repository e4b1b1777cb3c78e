package billing

import "fmt"

// ModelRate holds per-million-token pricing for a chat model, in USD.
type ModelRate struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// ErrUnknownModel is returned when a chat cost is requested for a model that
// has no pricing entry. Unknown models fail loudly: a silent default rate
// would mis-bill interviews.
type ErrUnknownModel struct {
	Model string
}

func (e *ErrUnknownModel) Error() string {
	return fmt.Sprintf("no pricing for model %q", e.Model)
}

// RegisterModelRate installs or overrides pricing for a model. Pricing
// changes ship as configuration: overrides are applied once at startup,
// before any turn runs.
func RegisterModelRate(model string, rate ModelRate) {
	modelRates[model] = rate
}

// LookupModelRate returns the pricing for a model ID, or nil if unknown.
func LookupModelRate(model string) *ModelRate {
	if r, ok := modelRates[model]; ok {
		return &r
	}
	return nil
}

// modelRates is the embedded chat pricing table, USD per 1M tokens.
var modelRates = map[string]ModelRate{
	"gpt-3.5-turbo": {0.5, 1.5},
	"gpt-4":         {30, 60},
	"gpt-4-turbo":   {10, 30},
	"gpt-4.1":       {2, 8},
	"gpt-4.1-mini":  {0.4, 1.6},
	"gpt-4.1-nano":  {0.1, 0.4},
	"gpt-4o":        {2.5, 10},
	"gpt-4o-mini":   {0.15, 0.6},
	"o3-mini":       {1.1, 4.4},
	"o4-mini":       {1.1, 4.4},

	// The deterministic test provider reports itself as "mock".
	"mock": {0, 0},
}
