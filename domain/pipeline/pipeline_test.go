package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/helixml/diffsum/domain/change"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_AdvanceIsMonotonicAndBounded(t *testing.T) {
	s := NewSession(3)
	require.NotEmpty(t, s.ID())

	s = s.Advance(2)
	assert.Equal(t, 2, s.Current())

	s = s.Advance(1)
	assert.Equal(t, 2, s.Current(), "current must not decrease")

	s = s.Advance(10)
	assert.Equal(t, 3, s.Current(), "current must not exceed total")
}

func TestError_MatchesKind(t *testing.T) {
	cause := errors.New("503 from upstream")
	err := error(&Error{Kind: ErrBackend, State: StateSummarizing, Step: 2, Path: "b.txt", Err: cause})

	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrCancelled)
	assert.Equal(t, "backend error at step 2 (b.txt): 503 from upstream", err.Error())
}

func TestError_CancelledWithoutCause(t *testing.T) {
	err := error(&Error{Kind: ErrCancelled, Err: ErrCancelled})
	assert.Equal(t, "cancelled", err.Error())
}

func TestResult_Copies(t *testing.T) {
	summaries := []change.Summary{change.NewSummary("a", "A", 1)}
	ids := []string{"1", "2"}
	r := NewResult("s", "msg", summaries, 0, ids)

	summaries[0] = change.NewSummary("z", "Z", 0)
	ids[0] = "x"

	assert.Equal(t, "a", r.Summaries()[0].Path())
	assert.Equal(t, []string{"1", "2"}, r.AuditRecordIDs())
}

func TestFallbackMessage(t *testing.T) {
	assert.Equal(t, "chore: update 1 file (+3 -1)", FallbackMessage(change.Stats{Files: 1, Additions: 3, Deletions: 1}))
	assert.Equal(t, "chore: update 4 files (+0 -0)", FallbackMessage(change.Stats{Files: 4}))
}

func TestObserverFunc(t *testing.T) {
	var got ProgressEvent
	var o Observer = ObserverFunc(func(_ context.Context, e ProgressEvent) { got = e })
	o.OnProgress(context.Background(), ProgressEvent{Current: 1, Total: 2})
	assert.Equal(t, 1, got.Current)

	NoopObserver{}.OnProgress(context.Background(), ProgressEvent{})
}
