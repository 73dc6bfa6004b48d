package budget

import (
	"sort"
	"strings"
)

const (
	// SafeFraction is the share of a model's context window a request may use.
	// The remaining 20% is reserved for the model's response.
	SafeFraction = 0.8

	// DefaultSafeLimit is the safe request size assumed when a model's context
	// window is unknown. It is policy, not derived from any model.
	DefaultSafeLimit = 3200
)

// SafeLimit returns floor(maxTokens * 0.8).
func SafeLimit(maxTokens int) int {
	if maxTokens <= 0 {
		return 0
	}
	return maxTokens * 4 / 5
}

// IsOverBudget reports whether an estimated request exceeds the safe envelope.
// When known is false, declaredMax is ignored and DefaultSafeLimit applies.
func IsOverBudget(estimated, declaredMax int, known bool) bool {
	return Gate{}.IsOverBudget(estimated, declaredMax, known)
}

// Gate is the budget check with an overridable fallback limit.
type Gate struct {
	// DefaultSafeLimit replaces the package DefaultSafeLimit when positive.
	DefaultSafeLimit int
}

// NewGate creates a Gate using fallback as the safe limit for unknown models.
func NewGate(fallback int) Gate {
	return Gate{DefaultSafeLimit: fallback}
}

// Limit returns the safe request size for the given capacity.
func (g Gate) Limit(declaredMax int, known bool) int {
	if known && declaredMax > 0 {
		return SafeLimit(declaredMax)
	}
	if g.DefaultSafeLimit > 0 {
		return g.DefaultSafeLimit
	}
	return DefaultSafeLimit
}

// IsOverBudget reports whether estimated is larger than Limit.
func (g Gate) IsOverBudget(estimated, declaredMax int, known bool) bool {
	return estimated > g.Limit(declaredMax, known)
}

// CapacityTable maps model name fragments to context window sizes.
type CapacityTable struct {
	entries []capacityEntry
}

type capacityEntry struct {
	fragment string
	tokens   int
}

// NewCapacityTable creates a table from fragment → context window pairs.
// Fragments are matched case-insensitively; the longest match wins.
func NewCapacityTable(capacities map[string]int) CapacityTable {
	entries := make([]capacityEntry, 0, len(capacities))
	for fragment, tokens := range capacities {
		entries = append(entries, capacityEntry{fragment: strings.ToLower(fragment), tokens: tokens})
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].fragment) != len(entries[j].fragment) {
			return len(entries[i].fragment) > len(entries[j].fragment)
		}
		return entries[i].fragment < entries[j].fragment
	})
	return CapacityTable{entries: entries}
}

// DefaultCapacityTable returns context windows for commonly used models.
func DefaultCapacityTable() CapacityTable {
	return NewCapacityTable(map[string]int{
		"gpt-4o":            128000,
		"gpt-4-turbo":       128000,
		"gpt-4.1":           1047576,
		"gpt-4-32k":         32768,
		"gpt-4":             8192,
		"gpt-3.5-turbo-16k": 16385,
		"gpt-3.5-turbo":     16385,
		"o1":                200000,
		"o3":                200000,
		"claude":            200000,
		"deepseek":          64000,
		"qwen":              32768,
		"glm-4":             128000,
		"moonshot-v1-8k":    8192,
		"moonshot-v1-32k":   32768,
		"moonshot-v1-128k":  131072,
		"llama3":            8192,
		"mistral":           32768,
		"gemini":            1048576,
	})
}

// Lookup returns the context window for model. The second result is false
// when no fragment matches, in which case callers fall back to
// DefaultSafeLimit.
func (t CapacityTable) Lookup(model string) (int, bool) {
	name := strings.ToLower(model)
	if name == "" {
		return 0, false
	}
	for _, e := range t.entries {
		if strings.Contains(name, e.fragment) {
			return e.tokens, true
		}
	}
	return 0, false
}
