package budget

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type msg string

func (m msg) Content() string { return string(m) }

func TestEstimate_Empty(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
}

func TestEstimate_NonEmptyIsPositive(t *testing.T) {
	for _, s := range []string{"a", " ", "\n", "中", "ab中", "🙂", "fix: typo"} {
		assert.Positive(t, Estimate(s), "estimate(%q)", s)
	}
}

func TestEstimate_DenseRepeated(t *testing.T) {
	for _, r := range []rune{'中', '㐀', '豈', 0x20000} {
		for n := 1; n <= 40; n++ {
			s := strings.Repeat(string(r), n)
			want := int(math.Ceil(float64(n) / 1.5))
			assert.Equal(t, want, Estimate(s), "rune %U n=%d", r, n)
		}
	}
}

func TestEstimate_SparseRoundsUp(t *testing.T) {
	assert.Equal(t, 1, Estimate("abc"))
	assert.Equal(t, 1, Estimate("abcd"))
	assert.Equal(t, 2, Estimate("abcde"))
}

func TestEstimate_GroupsRoundedSeparately(t *testing.T) {
	// 1 dense rune -> 1, 1 sparse rune -> 1; a global rounding would give 1.
	assert.Equal(t, 2, Estimate("中a"))
}

func TestEstimateRequest_AddsOverhead(t *testing.T) {
	messages := []msg{msg(strings.Repeat("a", 400)), msg(strings.Repeat("b", 400))}
	// 100 + 100 tokens, inflated by 10%.
	assert.Equal(t, 220, EstimateRequest(messages))
	assert.Equal(t, 220, EstimateTexts(strings.Repeat("a", 400), strings.Repeat("b", 400)))
	assert.Equal(t, 0, EstimateRequest([]msg{}))
	assert.Equal(t, 2, EstimateRequest([]msg{"a"}))
}

func TestSafeLimit(t *testing.T) {
	assert.Equal(t, 3276, SafeLimit(4096))
	assert.Equal(t, 102400, SafeLimit(128000))
	assert.Equal(t, 0, SafeLimit(1))
	assert.Equal(t, 0, SafeLimit(0))
}

func TestIsOverBudget_Known(t *testing.T) {
	for _, m := range []int{1, 5, 10, 999, 4096, 8192, 128000} {
		limit := int(math.Floor(float64(m) * 0.8))
		for _, x := range []int{0, limit - 1, limit, limit + 1, limit * 2} {
			assert.Equal(t, x > limit, IsOverBudget(x, m, true), "x=%d m=%d", x, m)
		}
	}
}

func TestIsOverBudget_UnknownUsesDefault(t *testing.T) {
	assert.False(t, IsOverBudget(3200, 0, false))
	assert.True(t, IsOverBudget(3201, 0, false))
	// declared max is ignored when unknown
	assert.False(t, IsOverBudget(3200, 10, false))
}

func TestGate_CustomDefault(t *testing.T) {
	g := NewGate(1000)
	assert.True(t, g.IsOverBudget(1001, 0, false))
	assert.False(t, g.IsOverBudget(1000, 0, false))
	assert.Equal(t, SafeLimit(8192), g.Limit(8192, true))
}

func TestCapacityTable_Lookup(t *testing.T) {
	table := DefaultCapacityTable()

	got, ok := table.Lookup("gpt-4o-mini")
	require.True(t, ok)
	assert.Equal(t, 128000, got)

	got, ok = table.Lookup("GPT-4")
	require.True(t, ok)
	assert.Equal(t, 8192, got)

	got, ok = table.Lookup("openai/gpt-4-32k-0613")
	require.True(t, ok)
	assert.Equal(t, 32768, got)

	_, ok = table.Lookup("some-local-model")
	assert.False(t, ok)

	_, ok = table.Lookup("")
	assert.False(t, ok)
}
