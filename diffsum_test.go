package diffsum_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/diffsum"
	"github.com/helixml/diffsum/domain/change"
	"github.com/helixml/diffsum/domain/pipeline"
	"github.com/helixml/diffsum/infrastructure/enricher"
	"github.com/helixml/diffsum/infrastructure/provider"
	"github.com/helixml/diffsum/internal/config"
)

// scriptedGenerator answers unit requests with unitReply and every other
// request with messageReply.
type scriptedGenerator struct {
	mu           sync.Mutex
	unitReply    string
	messageReply string
	messageErr   error
	unitCalls    int
	otherCalls   int
}

func (g *scriptedGenerator) ChatCompletion(_ context.Context, req provider.ChatCompletionRequest) (provider.ChatCompletionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if req.MaxTokens() == enricher.UnitMaxTokens {
		g.unitCalls++
		return provider.NewChatCompletionResponse(g.unitReply, req.Model(), "stop", nil), nil
	}
	g.otherCalls++
	if g.messageErr != nil {
		return provider.ChatCompletionResponse{}, g.messageErr
	}
	return provider.NewChatCompletionResponse(g.messageReply, req.Model(), "stop", nil), nil
}

func (g *scriptedGenerator) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unitCalls, g.otherCalls
}

func newTestClient(t *testing.T, gen provider.TextGenerator, opts ...diffsum.Option) *diffsum.Client {
	t.Helper()
	base := []diffsum.Option{
		diffsum.WithSQLite(":memory:"),
		diffsum.WithDataDir(t.TempDir()),
		diffsum.WithTextProvider(gen),
		diffsum.WithLogger(slog.New(slog.DiscardHandler)),
	}
	client, err := diffsum.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func bigUnits() []change.Unit {
	return []change.Unit{
		change.NewUnit("a.go", "+"+strings.Repeat("a", 400)),
		change.NewUnit("b.go", "-"+strings.Repeat("b", 400)),
	}
}

func TestNew_RequiresDatabase(t *testing.T) {
	_, err := diffsum.New(diffsum.WithTextProvider(&scriptedGenerator{}))
	assert.ErrorIs(t, err, diffsum.ErrNoDatabase)
}

func TestNew_RequiresProvider(t *testing.T) {
	_, err := diffsum.New(
		diffsum.WithSQLite(":memory:"),
		diffsum.WithDataDir(t.TempDir()),
	)
	assert.ErrorIs(t, err, diffsum.ErrNoProvider)
}

func TestClient_CloseTwice(t *testing.T) {
	client, err := diffsum.New(
		diffsum.WithSQLite(":memory:"),
		diffsum.WithDataDir(t.TempDir()),
		diffsum.WithTextProvider(&scriptedGenerator{}),
		diffsum.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Close(), diffsum.ErrClientClosed)

	_, err = client.Summarize(context.Background(), diffsum.SummarizeRequest{Units: bigUnits()}, nil)
	assert.ErrorIs(t, err, diffsum.ErrClientClosed)
}

func TestClient_Summarize_SingleShot(t *testing.T) {
	gen := &scriptedGenerator{messageReply: "feat: add greeting"}
	client := newTestClient(t, gen, diffsum.WithModel("gpt-4o"))

	units := []change.Unit{change.NewUnit("hello.go", "+fmt.Println(\"hi\")")}
	out, err := client.Summarize(context.Background(), diffsum.SummarizeRequest{Units: units}, nil)
	require.NoError(t, err)

	assert.Equal(t, diffsum.ModeSingleShot, out.Mode)
	assert.Equal(t, "feat: add greeting", out.Message)
	require.Len(t, out.RecordIDs, 1)

	unitCalls, otherCalls := gen.counts()
	assert.Equal(t, 0, unitCalls)
	assert.Equal(t, 1, otherCalls)

	records, err := client.AuditRecords(context.Background(), out.SessionID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Success())
}

func TestClient_Summarize_Layered(t *testing.T) {
	gen := &scriptedGenerator{unitReply: "Update file", messageReply: "refactor: update a and b"}
	client := newTestClient(t, gen,
		diffsum.WithModel("tiny"),
		diffsum.WithModelCapacities(map[string]int{"tiny": 100}),
	)

	var events []pipeline.ProgressEvent
	observer := pipeline.ObserverFunc(func(_ context.Context, e pipeline.ProgressEvent) {
		events = append(events, e)
	})

	out, err := client.Summarize(context.Background(), diffsum.SummarizeRequest{Units: bigUnits()}, observer)
	require.NoError(t, err)

	assert.Equal(t, diffsum.ModeLayered, out.Mode)
	assert.Equal(t, "refactor: update a and b", out.Message)
	assert.Len(t, out.Summaries, 2)
	assert.Len(t, out.RecordIDs, 3)
	require.NotEmpty(t, events)
	assert.Equal(t, pipeline.StateCompleted, events[len(events)-1].State)
}

func TestClient_Summarize_LayeredModeDisabled(t *testing.T) {
	gen := &scriptedGenerator{messageReply: "chore: update files"}
	client := newTestClient(t, gen,
		diffsum.WithModel("tiny"),
		diffsum.WithModelCapacities(map[string]int{"tiny": 100}),
		diffsum.WithLayeredMode(false),
	)

	out, err := client.Summarize(context.Background(), diffsum.SummarizeRequest{Units: bigUnits(), ForceLayered: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, diffsum.ModeSingleShot, out.Mode)

	unitCalls, _ := gen.counts()
	assert.Equal(t, 0, unitCalls)
}

func TestClient_Summarize_BackendFailure(t *testing.T) {
	gen := &scriptedGenerator{messageErr: errors.New("upstream down")}
	client := newTestClient(t, gen, diffsum.WithModel("gpt-4o"))

	units := []change.Unit{change.NewUnit("a.go", "@@ -1 +1 @@\n-old\n+new")}
	_, err := client.Summarize(context.Background(), diffsum.SummarizeRequest{Units: units}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrBackend)

	var perr *pipeline.Error
	require.True(t, errors.As(err, &perr))
	records, err := client.AuditRecords(context.Background(), perr.SessionID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Success())

	assert.Equal(t, "chore: update 1 file (+1 -1)", diffsum.Fallback(units))
}

func TestClient_Summarize_LayeredUnknownTemplate(t *testing.T) {
	gen := &scriptedGenerator{unitReply: "Update file", messageReply: "unused"}
	client := newTestClient(t, gen,
		diffsum.WithModel("tiny"),
		diffsum.WithModelCapacities(map[string]int{"tiny": 100}),
	)

	_, err := client.Summarize(context.Background(), diffsum.SummarizeRequest{Units: bigUnits(), TemplateID: "missing"}, nil)
	assert.ErrorIs(t, err, pipeline.ErrTemplateNotFound)

	unitCalls, otherCalls := gen.counts()
	assert.Zero(t, unitCalls)
	assert.Zero(t, otherCalls)
}

func TestClient_Summarize_NoUnits(t *testing.T) {
	client := newTestClient(t, &scriptedGenerator{})
	_, err := client.Summarize(context.Background(), diffsum.SummarizeRequest{}, nil)
	assert.ErrorIs(t, err, pipeline.ErrNoUnits)
}

func TestClient_Estimate_DeclaredMaxTokens(t *testing.T) {
	endpoint := config.NewEndpointWithOptions(
		config.WithModel("local-model"),
		config.WithMaxTokens(100),
	)
	client := newTestClient(t, &scriptedGenerator{}, diffsum.WithEndpoint(endpoint))

	check := client.Estimate(strings.Repeat("a", 324), "")
	assert.Equal(t, "local-model", check.Model)
	assert.True(t, check.Known)
	assert.Equal(t, 80, check.Limit)
	assert.True(t, check.OverBudget)

	other := client.Estimate(strings.Repeat("a", 324), "unknown-model")
	assert.False(t, other.Known)
	assert.False(t, other.OverBudget)
}

func TestClient_DebugPromptsToggle(t *testing.T) {
	toggles := config.NewToggles(false)
	client := newTestClient(t, &scriptedGenerator{}, diffsum.WithToggles(toggles))

	client.SetDebugPrompts(true)
	assert.True(t, toggles.DebugPrompts())
	assert.True(t, client.DebugPrompts())
}

func TestNew_WithoutProvider(t *testing.T) {
	client, err := diffsum.New(
		diffsum.WithSQLite(":memory:"),
		diffsum.WithDataDir(t.TempDir()),
		diffsum.WithoutProvider(),
		diffsum.WithModel("gpt-4o"),
		diffsum.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, 1, client.Estimate("abcd", "").Tokens)

	records, err := client.Audit.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = client.Summarize(context.Background(), diffsum.SummarizeRequest{Units: bigUnits()}, nil)
	assert.ErrorIs(t, err, diffsum.ErrNoProvider)
}
