package enricher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/helixml/diffsum/domain/audit"
	"github.com/helixml/diffsum/domain/change"
	"github.com/helixml/diffsum/infrastructure/cache"
	"github.com/helixml/diffsum/infrastructure/provider"
	"github.com/helixml/diffsum/infrastructure/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGenerator answers calls in order with the given replies. A reply
// that is an error fails the call.
type scriptedGenerator struct {
	mu       sync.Mutex
	replies  []any
	requests []provider.ChatCompletionRequest
}

func (g *scriptedGenerator) ChatCompletion(_ context.Context, req provider.ChatCompletionRequest) (provider.ChatCompletionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)
	if len(g.replies) == 0 {
		return provider.ChatCompletionResponse{}, errors.New("no scripted reply")
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]

	if err, ok := reply.(error); ok {
		return provider.ChatCompletionResponse{}, err
	}
	return provider.NewChatCompletionResponse(reply.(string), "served-model", "stop", provider.NewUsage(10, 5, 15)), nil
}

type debugOn struct{}

func (debugOn) DebugPrompts() bool { return true }

func newTestSummarizer(t *testing.T, gen provider.TextGenerator, opts ...SummarizerOption) *Summarizer {
	t.Helper()
	templates, err := template.NewDefaultProvider("")
	require.NoError(t, err)
	s, err := NewSummarizer(gen, templates, slog.Default(), opts...)
	require.NoError(t, err)
	return s
}

func TestNewSummarizer_NilDependencies(t *testing.T) {
	templates, err := template.NewDefaultProvider("")
	require.NoError(t, err)

	_, err = NewSummarizer(nil, templates, nil)
	assert.Error(t, err)

	_, err = NewSummarizer(&scriptedGenerator{}, nil, nil)
	assert.Error(t, err)
}

func TestSummarizeUnit_Success(t *testing.T) {
	gen := &scriptedGenerator{replies: []any{"Updated A"}}
	s := newTestSummarizer(t, gen, WithPromptDebugger(debugOn{}))

	summary, record, err := s.SummarizeUnit(context.Background(), UnitRequest{
		Unit:       change.NewUnit("a.txt", "diff-A"),
		SessionID:  "session-1",
		StepIndex:  1,
		TotalSteps: 3,
		Model:      "gpt-4o",
		RepoPath:   "/repo",
	})
	require.NoError(t, err)

	assert.Equal(t, "a.txt", summary.Path())
	assert.Equal(t, "Updated A", summary.Text())
	assert.Positive(t, summary.Tokens())

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.Equal(t, UnitMaxTokens, req.MaxTokens())
	assert.InDelta(t, Temperature, req.Temperature(), 1e-9)
	assert.Equal(t, "gpt-4o", req.Model())
	assert.Contains(t, req.Messages()[0].Content(), "20-50 words")
	assert.Contains(t, req.Messages()[1].Content(), "a.txt")
	assert.Contains(t, req.Messages()[1].Content(), "diff-A")

	assert.True(t, record.Success())
	assert.Equal(t, "session-1", record.SessionID())
	assert.Equal(t, "/repo", record.RepoPath())
	require.NotNil(t, record.Step())
	assert.Equal(t, audit.Step{Type: audit.StepFileAnalysis, Index: 1, Total: 3, FilePath: "a.txt"}, *record.Step())
	require.NotNil(t, record.Response())
	assert.Equal(t, "served-model", record.Response().Model)
	assert.Equal(t, 15, record.Response().Usage.TotalTokens)
}

func TestSummarizeUnit_FailureReturnsRecord(t *testing.T) {
	gen := &scriptedGenerator{replies: []any{errors.New("503 upstream")}}
	s := newTestSummarizer(t, gen)

	_, record, err := s.SummarizeUnit(context.Background(), UnitRequest{
		Unit:       change.NewUnit("b.txt", "diff-B"),
		SessionID:  "session-1",
		StepIndex:  2,
		TotalSteps: 3,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503 upstream")

	assert.False(t, record.Success())
	assert.Nil(t, record.Response())
	assert.Equal(t, "503 upstream", record.Error())
	assert.Equal(t, "b.txt", record.Step().FilePath)
	assert.NotEmpty(t, record.ID())
}

func TestAggregate_Success(t *testing.T) {
	gen := &scriptedGenerator{replies: []any{"<think>two files</think>\nfeat: update a and b"}}
	s := newTestSummarizer(t, gen)

	msg, record, err := s.Aggregate(context.Background(), AggregateRequest{
		Summaries: []change.Summary{
			change.NewSummary("a.txt", "Updated A", 3),
			change.NewSummary("b.txt", "Updated B", 3),
		},
		BranchHint: "main",
		TemplateID: template.DefaultID,
		Language:   "English",
		SessionID:  "session-1",
		StepIndex:  3,
		TotalSteps: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "feat: update a and b", msg)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.Equal(t, AggregateMaxTokens, req.MaxTokens())
	system := req.Messages()[0].Content()
	assert.Contains(t, system, "Write the message in English.")
	assert.Contains(t, system, "not the raw diff")
	user := req.Messages()[1].Content()
	assert.Contains(t, user, "### a.txt\nUpdated A")
	assert.Contains(t, user, "### b.txt\nUpdated B")

	assert.Equal(t, audit.StepAggregation, record.Step().Type)
	assert.Equal(t, "<think>two files</think>\nfeat: update a and b", record.Response().Content)
	assert.Equal(t, "feat: update a and b", record.Response().CleanContent)
}

func TestAggregate_UnknownTemplateMakesNoCall(t *testing.T) {
	gen := &scriptedGenerator{replies: []any{"unused"}}
	s := newTestSummarizer(t, gen)

	_, record, err := s.Aggregate(context.Background(), AggregateRequest{TemplateID: "nope"})
	assert.ErrorIs(t, err, template.ErrNotFound)
	assert.Empty(t, record.ID())
	assert.Empty(t, gen.requests)
}

func TestCheckTemplate(t *testing.T) {
	s := newTestSummarizer(t, &scriptedGenerator{})

	assert.NoError(t, s.CheckTemplate(template.DefaultID))
	assert.ErrorIs(t, s.CheckTemplate("nope"), template.ErrNotFound)
}

func TestSummarizer_CacheHitSkipsBackend(t *testing.T) {
	gen := &scriptedGenerator{replies: []any{"Updated A"}}
	mem := cache.NewMemory()
	s := newTestSummarizer(t, gen, WithCache(mem))

	req := UnitRequest{Unit: change.NewUnit("a.txt", "diff-A"), StepIndex: 1, TotalSteps: 2, Model: "m"}

	_, first, err := s.SummarizeUnit(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, first.Step().Description)
	assert.Equal(t, 1, mem.Len())

	summary, second, err := s.SummarizeUnit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Updated A", summary.Text())
	assert.Equal(t, cacheHitDescription, second.Step().Description)
	assert.True(t, second.Success())
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Len(t, gen.requests, 1)
}

func TestSingleShot(t *testing.T) {
	gen := &scriptedGenerator{replies: []any{"fix: small change"}}
	s := newTestSummarizer(t, gen)

	msg, record, err := s.SingleShot(context.Background(),
		[]change.Unit{change.NewUnit("a.txt", "diff-A"), change.NewUnit("b.txt", "diff-B")},
		AggregateRequest{TemplateID: "simple"},
	)
	require.NoError(t, err)
	assert.Equal(t, "fix: small change", msg)
	assert.Equal(t, audit.StepSingleShot, record.Step().Type)
	assert.Contains(t, gen.requests[0].Messages()[1].Content(), "diff-A\ndiff-B")
}
