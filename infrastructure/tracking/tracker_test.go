package tracking_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/helixml/diffsum/domain/change"
	"github.com/helixml/diffsum/domain/pipeline"
	"github.com/helixml/diffsum/infrastructure/tracking"
	"github.com/helixml/diffsum/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_FansOutInOrder(t *testing.T) {
	var order []string
	first := pipeline.ObserverFunc(func(context.Context, pipeline.ProgressEvent) { order = append(order, "first") })
	second := pipeline.ObserverFunc(func(context.Context, pipeline.ProgressEvent) { order = append(order, "second") })

	d := tracking.NewDispatcher(first, nil)
	d.Subscribe(second)
	d.OnProgress(context.Background(), event("s", pipeline.StateInit, 0))

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatcher_SubscribersGetIndependentSummaries(t *testing.T) {
	mutator := pipeline.ObserverFunc(func(_ context.Context, e pipeline.ProgressEvent) {
		e.Summaries[0] = change.NewSummary("changed", "changed", 0)
	})
	recorder := &fakeObserver{}

	d := tracking.NewDispatcher(mutator, recorder)
	e := event("s", pipeline.StateSummarizing, 1)
	e.Summaries = []change.Summary{change.NewSummary("a.go", "Added parser", 3)}
	d.OnProgress(context.Background(), e)

	got := recorder.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "a.go", got[0].Summaries[0].Path())
	assert.Equal(t, "a.go", e.Summaries[0].Path())
}

func TestChannelObserver_DropsWhenFull(t *testing.T) {
	o := tracking.NewChannelObserver(2)
	ctx := context.Background()

	for i := range 4 {
		o.OnProgress(ctx, event("s", pipeline.StateSummarizing, i))
	}
	assert.Equal(t, int64(2), o.Dropped())

	require.NoError(t, o.Close())
	o.OnProgress(ctx, event("s", pipeline.StateCompleted, 4))

	var got []int
	for e := range o.Events() {
		got = append(got, e.Current)
	}
	assert.Equal(t, []int{0, 1}, got)
	assert.NoError(t, o.Close())
}

func TestLoggingObserver_LogsStateAndPath(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	o := tracking.NewLoggingObserver(logger)

	e := event("s1", pipeline.StateSummarizing, 2)
	e.Status = "summarizing file"
	e.CurrentPath = "src/main.go"
	o.OnProgress(context.Background(), e)

	failed := event("s1", pipeline.StateFailed, 2)
	failed.Status = "pipeline failed"
	o.OnProgress(context.Background(), failed)

	out := buf.String()
	assert.Contains(t, out, "summarizing file")
	assert.Contains(t, out, "path=src/main.go")
	assert.Contains(t, out, "session_id=s1")
	assert.Contains(t, out, "level=ERROR")
}

func TestLoggingObserver_LeavesSessionToContext(t *testing.T) {
	var buf bytes.Buffer
	o := tracking.NewLoggingObserver(slog.New(slog.NewTextHandler(&buf, nil)))

	ctx := log.WithSessionID(context.Background(), "s1")
	o.OnProgress(ctx, event("s1", pipeline.StateSummarizing, 1))

	assert.NotContains(t, buf.String(), "session_id=")
}
