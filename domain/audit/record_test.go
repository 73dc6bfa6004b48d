package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSuccess_HasResponse(t *testing.T) {
	req := Request{Model: "m", Messages: []Message{{Role: "user", Content: "hi"}}}
	rec := NewSuccess("s1", &Step{Type: StepFileAnalysis, Index: 1, Total: 3, FilePath: "a.go"}, req, Response{Content: "raw", CleanContent: "clean"}, time.Second)

	require.True(t, rec.Success())
	require.NotNil(t, rec.Response())
	assert.Equal(t, "raw", rec.Response().Content)
	assert.Empty(t, rec.Error())
	assert.Equal(t, "s1", rec.SessionID())
	assert.Equal(t, StepFileAnalysis, rec.Step().Type)
	assert.NotEmpty(t, rec.ID())
	assert.False(t, rec.Timestamp().IsZero())
}

func TestNewFailure_AlwaysHasErrorText(t *testing.T) {
	rec := NewFailure("", nil, Request{}, "  ", 0)

	assert.False(t, rec.Success())
	assert.Nil(t, rec.Response())
	assert.Equal(t, "unknown error", rec.Error())
	assert.Nil(t, rec.Step())
}

func TestRecord_IsImmutable(t *testing.T) {
	req := Request{Messages: []Message{{Role: "user", Content: "original"}}}
	rec := NewSuccess("s", &Step{Index: 1}, req, Response{Content: "x"}, 0)

	req.Messages[0].Content = "changed"
	rec.Request().Messages[0].Content = "changed too"
	rec.Step().Index = 99
	rec.Response().Content = "y"

	assert.Equal(t, "original", rec.Request().Messages[0].Content)
	assert.Equal(t, 1, rec.Step().Index)
	assert.Equal(t, "x", rec.Response().Content)
}

func TestNewID_Ordered(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.Less(t, a, b)
}

func TestWithRepoPath_Copies(t *testing.T) {
	rec := NewFailure("s", nil, Request{}, "boom", 0)
	tagged := rec.WithRepoPath("/repo")

	assert.Equal(t, "", rec.RepoPath())
	assert.Equal(t, "/repo", tagged.RepoPath())
	assert.Equal(t, rec.ID(), tagged.ID())
}
