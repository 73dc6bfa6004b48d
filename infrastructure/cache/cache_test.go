package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput() KeyInput {
	return KeyInput{
		TemplateID: "conventional",
		Model:      "gpt-4o",
		Language:   "English",
		RepoPath:   "/src/app",
		Parts: []Part{
			{Path: "a.txt", Content: "diff-A"},
			{Path: "b.txt", Content: "diff-B"},
		},
	}
}

func TestNewKey_Deterministic(t *testing.T) {
	k1 := NewKey(sampleInput())
	k2 := NewKey(sampleInput())
	assert.Equal(t, k1, k2)
	assert.Len(t, string(k1), 64)
}

func TestNewKey_SensitiveToEveryField(t *testing.T) {
	base := NewKey(sampleInput())

	mutations := map[string]func(*KeyInput){
		"template": func(in *KeyInput) { in.TemplateID = "simple" },
		"model":    func(in *KeyInput) { in.Model = "gpt-4" },
		"language": func(in *KeyInput) { in.Language = "Chinese" },
		"repo":     func(in *KeyInput) { in.RepoPath = "/src/other" },
		"order": func(in *KeyInput) {
			in.Parts[0], in.Parts[1] = in.Parts[1], in.Parts[0]
		},
		"content": func(in *KeyInput) { in.Parts[1].Content = "diff-C" },
		"boundary": func(in *KeyInput) {
			in.Parts[0] = Part{Path: "a.txtd", Content: "iff-A"}
		},
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := sampleInput()
			mutate(&in)
			assert.NotEqual(t, base, NewKey(in))
		})
	}
}

func TestNewKey_UsesPrefixAndLength(t *testing.T) {
	long := strings.Repeat("x", PrefixBytes)

	a := KeyInput{Parts: []Part{{Path: "f", Content: long + "tail-1"}}}
	b := KeyInput{Parts: []Part{{Path: "f", Content: long + "tail-2"}}}
	c := KeyInput{Parts: []Part{{Path: "f", Content: long + "tail-22"}}}

	assert.Equal(t, NewKey(a), NewKey(b), "content beyond the prefix is ignored")
	assert.NotEqual(t, NewKey(a), NewKey(c), "content length still counts")
}

func TestDisk_PutGet(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	d, err := NewDisk(dir)
	require.NoError(t, err)

	key := NewKey(sampleInput())
	_, ok := d.Get(ctx, key)
	assert.False(t, ok)

	entry := Entry{Content: "feat: x", Model: "gpt-4o", FinishReason: "stop", CreatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, d.Put(ctx, key, entry))

	got, ok := d.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, entry.Content, got.Content)
	assert.True(t, entry.CreatedAt.Equal(got.CreatedAt))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestDisk_CorruptFileIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d, err := NewDisk(dir)
	require.NoError(t, err)

	key := Key("deadbeef")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deadbeef.json"), []byte("{not json"), 0o644))

	_, ok := d.Get(ctx, key)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	key := NewKey(sampleInput())

	require.NoError(t, m.Put(ctx, key, Entry{Content: "x"}))
	got, ok := m.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "x", got.Content)
	assert.Equal(t, 1, m.Len())

	_, ok = Noop{}.Get(ctx, key)
	assert.False(t, ok)
}
